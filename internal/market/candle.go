package market

// Candle 一根原始 K 线（OHLCV），时间戳为毫秒。
// 结构分析引擎把它当作不可变输入，序号由其在序列中的位置决定。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time,omitempty"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades,omitempty"`
}

// SameOHLCV 判断两根 K 线的报价是否完全一致（忽略成交笔数）。
func (c Candle) SameOHLCV(o Candle) bool {
	return c.Open == o.Open && c.High == o.High && c.Low == o.Low &&
		c.Close == o.Close && c.Volume == o.Volume
}

// Closes 抽取收盘价序列。
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
