package chanlun

// Direction 方向：向上 / 向下；0 表示无方向（盘整）。
type Direction int8

const (
	Down Direction = -1
	Up   Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "none"
	}
}

func (d Direction) Opposite() Direction { return -d }

// Level 线的级别：笔或线段。
type Level int8

const (
	LevelStroke Level = iota
	LevelSegment
)

func (l Level) String() string {
	if l == LevelSegment {
		return "xd"
	}
	return "bi"
}

type FractalKind int8

const (
	Bottom FractalKind = -1
	Top    FractalKind = 1
)

func (k FractalKind) String() string {
	if k == Top {
		return "top"
	}
	return "bottom"
}

// Candle 经过包含处理后的 K 线。
type Candle struct {
	Index    int
	Time     int64 // 决定高/低点的原始 K 线时间
	EndTime  int64 // 最后一根原始 K 线时间
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	BarStart int
	BarEnd   int
	Count    int
	Gap      bool
	Dir      Direction
	HighBar  int
	LowBar   int
}

func (c Candle) contains(high, low float64) bool {
	return (high <= c.High && low >= c.Low) || (high >= c.High && low <= c.Low)
}

// Fractal 顶/底分型，Center 为中间 K 线下标。
type Fractal struct {
	Index    int
	Kind     FractalKind
	Center   int
	Value    float64
	Time     int64
	Strength int
	Done     bool
}

// Stroke 笔。Start/End 为分型下标。
type Stroke struct {
	Index     int
	Dir       Direction
	Start     int
	End       int
	High      float64
	Low       float64
	StartTime int64
	EndTime   int64
	Done      bool
}

// SeqEntry 特征序列元素，First/Last 为构成它的原始笔下标，
// Peak 为给出合并后极值（向上合并取高点，向下合并取低点）的那根笔。
type SeqEntry struct {
	High   float64
	Low    float64
	First  int
	Last   int
	Peak   int
	Merged bool
}

// SeqFractal 特征序列上的分型。
type SeqFractal struct {
	Kind   FractalKind
	Left   SeqEntry
	Middle SeqEntry
	Right  SeqEntry
}

// BreakInfo 线段结束时交给下一段的信息，EndStroke 为 -1 表示未知。
type BreakInfo struct {
	NextDir     Direction
	StartStroke int
	EndStroke   int
}

const (
	ReasonTopFractal    = "top_fractal"
	ReasonBottomFractal = "bottom_fractal"
	ReasonDual          = "dual_condition"
	ReasonPending       = "pending"
)

// Segment 线段。Start/End 为笔下标。
type Segment struct {
	Index     int
	Dir       Direction
	Start     int
	End       int
	High      float64
	Low       float64
	StartTime int64
	EndTime   int64
	Done      bool
	Reason    string
	Fractal   SeqFractal
	Break     BreakInfo
}

type PivotType int8

const (
	PivotRange PivotType = 0
	PivotUp    PivotType = 1
	PivotDown  PivotType = -1
)

func (t PivotType) String() string {
	switch t {
	case PivotUp:
		return "up"
	case PivotDown:
		return "down"
	default:
		return "range"
	}
}

// Pivot 中枢。First/Last/Entry/Exit 为同级别线的下标，-1 表示不存在。
type Pivot struct {
	Index  int
	Level  Level
	Policy string
	First  int
	Last   int
	Entry  int
	Exit   int
	ZG     float64
	ZD     float64
	GG     float64
	DD     float64
	Type   PivotType
	Lines  int
	Done   bool
	Real   bool
	Depth  int
}

// LineRef 指向一根笔或线段。
type LineRef struct {
	Level Level
	Index int
}

type MMDKind string

const (
	Buy1      MMDKind = "1buy"
	Buy2      MMDKind = "2buy"
	Buy3      MMDKind = "3buy"
	Buy2Like  MMDKind = "l2buy"
	Buy3Like  MMDKind = "l3buy"
	Sell1     MMDKind = "1sell"
	Sell2     MMDKind = "2sell"
	Sell3     MMDKind = "3sell"
	Sell2Like MMDKind = "l2sell"
	Sell3Like MMDKind = "l3sell"
)

// IsBuy 买点发生在向下的线末端。
func (k MMDKind) IsBuy() bool {
	switch k {
	case Buy1, Buy2, Buy3, Buy2Like, Buy3Like:
		return true
	}
	return false
}

// MMD 买卖点，Pivot 为同策略中枢列表中的下标。
type MMD struct {
	Kind   MMDKind
	Line   LineRef
	Policy string
	Pivot  int
	Rule   string
}

type DivergenceKind string

const (
	BCStroke  DivergenceKind = "bi"
	BCSegment DivergenceKind = "xd"
	BCRange   DivergenceKind = "pz"
	BCTrend   DivergenceKind = "qs"
)

// Divergence 一次力度比较的结果；Result 为 true 表示背驰。
type Divergence struct {
	Kind      DivergenceKind
	Line      LineRef
	Compare   LineRef
	Policy    string
	Pivot     int
	Result    bool
	Force     float64
	PrevForce float64
}

// LineView 笔与线段的统一视图，供中枢与买卖点计算。
type LineView struct {
	Dir      Direction
	High     float64
	Low      float64
	BarStart int
	BarEnd   int
	Done     bool
}
