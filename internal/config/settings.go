package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"chanlun/internal/logger"
)

// 各阶段的规则取值。
const (
	FxNormal = "normal"
	FxStrict = "strict"

	BiOld       = "old"
	BiNew       = "new"
	BiSimple    = "simple"
	BiTopBottom = "top_bottom"

	RangeDD = "dd" // 分型值
	RangeCK = "ck" // 合并 K 线极值
	RangeK  = "k"  // 原始 K 线极值

	PolicyStandard      = "standard"
	PolicyWithinSegment = "within_segment"
	PolicyDirectional   = "directional"
	PolicyClassified    = "classified"

	RelationGGDD = "gg_dd"
	RelationZGZD = "zg_zd"
	RelationZGDD = "zg_dd"

	MetricHistSum  = "hist_sum"
	MetricHistPeak = "hist_peak"

	Mmd3Outside = "outside"
	Mmd3Middle  = "middle"
)

// MinCacheSize 有界重算窗口的下限（原始 K 线数）。
const MinCacheSize = 100

// DefaultCacheSize 默认的有界重算窗口。0 表示保留全部历史，每次更新都从头重算。
const DefaultCacheSize = 5000

// Settings 一个引擎实例的完整规则包，构造后不可修改。
type Settings struct {
	FxRule        string
	FxEqual       bool
	FxMinStrength int

	BiType   string
	BiMinRaw int
	BiRange  string

	XdRange      string
	XdOpenStroke bool

	ZsBiTypes      []string
	ZsXdTypes      []string
	ZsRelation     string
	ZsTouch        bool
	ZsMinCoreRatio float64
	ZsMaxLines     int

	MacdFast   int
	MacdSlow   int
	MacdSignal int
	LdMetric   string

	BcLine           bool
	BcRange          bool
	BcTrend          bool
	BcRequireExtreme bool

	Mmd1FromRange  bool
	Mmd1MinPivots  int
	Mmd2AllowEqual bool
	Mmd3Mode       string
	Mmd3UseGG      bool
	Mmd3MaxLines   int
	Mmd23Merge     bool

	MmdLikeSecond bool
	MmdLikeThird  bool
	MmdLikeWeaker bool

	CacheSize  int
	StrictKeys bool
}

// Default 返回默认规则包。
func Default() Settings {
	return Settings{
		FxRule:           FxNormal,
		BiType:           BiOld,
		BiMinRaw:         5,
		BiRange:          RangeDD,
		XdRange:          RangeDD,
		XdOpenStroke:     true,
		ZsBiTypes:        []string{PolicyStandard},
		ZsXdTypes:        []string{PolicyStandard},
		ZsRelation:       RelationGGDD,
		MacdFast:         12,
		MacdSlow:         26,
		MacdSignal:       9,
		LdMetric:         MetricHistSum,
		BcLine:           true,
		BcRange:          true,
		BcTrend:          true,
		BcRequireExtreme: true,
		Mmd1MinPivots:    2,
		Mmd3Mode:         Mmd3Outside,
		Mmd3MaxLines:     9,
		Mmd23Merge:       true,
		MmdLikeWeaker:    true,
		CacheSize:        DefaultCacheSize,
		StrictKeys:       true,
	}
}

// Keys 所有已登记的键，按字母序。
func Keys() []string {
	keys := make([]string, 0, len(Default().Params()))
	for k := range Default().Params() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromParams 在默认值之上应用扁平参数包并校验。
func FromParams(params map[string]interface{}) (Settings, error) {
	s := Default()
	if v, ok, err := boolFromCfg(params, "strict_keys"); err != nil {
		return Settings{}, err
	} else if ok {
		s.StrictKeys = v
	}
	known := s.Params()
	for key := range params {
		if _, ok := known[key]; ok {
			continue
		}
		if s.StrictKeys {
			return Settings{}, &ConfigurationError{Key: key, Reason: "未登记的配置项", Err: ErrUnknownKey}
		}
		logger.Warnf("忽略未登记的配置项 %s", key)
	}
	if err := s.apply(params); err != nil {
		return Settings{}, err
	}
	s.Normalize()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) apply(params map[string]interface{}) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"fx_rule", &s.FxRule},
		{"bi_type", &s.BiType},
		{"bi_range", &s.BiRange},
		{"xd_range", &s.XdRange},
		{"zs_relation", &s.ZsRelation},
		{"ld_metric", &s.LdMetric},
		{"mmd_3_mode", &s.Mmd3Mode},
	}
	for _, f := range strs {
		if v, ok := stringFromCfg(params, f.key); ok {
			*f.dst = v
		}
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"fx_min_strength", &s.FxMinStrength},
		{"bi_min_raw", &s.BiMinRaw},
		{"zs_max_lines", &s.ZsMaxLines},
		{"macd_fast", &s.MacdFast},
		{"macd_slow", &s.MacdSlow},
		{"macd_signal", &s.MacdSignal},
		{"mmd_1_min_pivots", &s.Mmd1MinPivots},
		{"mmd_3_max_lines", &s.Mmd3MaxLines},
		{"cache_size", &s.CacheSize},
	}
	for _, f := range ints {
		v, ok, err := intFromCfg(params, f.key)
		if err != nil {
			return err
		}
		if ok {
			*f.dst = v
		}
	}
	bools := []struct {
		key string
		dst *bool
	}{
		{"fx_equal", &s.FxEqual},
		{"xd_open_stroke", &s.XdOpenStroke},
		{"zs_touch", &s.ZsTouch},
		{"bc_line", &s.BcLine},
		{"bc_range", &s.BcRange},
		{"bc_trend", &s.BcTrend},
		{"bc_require_extreme", &s.BcRequireExtreme},
		{"mmd_1_from_range", &s.Mmd1FromRange},
		{"mmd_2_allow_equal", &s.Mmd2AllowEqual},
		{"mmd_3_use_gg", &s.Mmd3UseGG},
		{"mmd_23_merge", &s.Mmd23Merge},
		{"mmd_like_second", &s.MmdLikeSecond},
		{"mmd_like_third", &s.MmdLikeThird},
		{"mmd_like_weaker", &s.MmdLikeWeaker},
	}
	for _, f := range bools {
		v, ok, err := boolFromCfg(params, f.key)
		if err != nil {
			return err
		}
		if ok {
			*f.dst = v
		}
	}
	if v, ok, err := floatFromCfg(params, "zs_min_core_ratio"); err != nil {
		return err
	} else if ok {
		s.ZsMinCoreRatio = v
	}
	if v, ok := sliceFromCfg(params, "zs_bi_types"); ok {
		s.ZsBiTypes = v
	}
	if v, ok := sliceFromCfg(params, "zs_xd_types"); ok {
		s.ZsXdTypes = v
	}
	return nil
}

// Normalize 去重并补全空值。
func (s *Settings) Normalize() {
	s.ZsBiTypes = dedupe(s.ZsBiTypes)
	s.ZsXdTypes = dedupe(s.ZsXdTypes)
	if s.FxRule == "" {
		s.FxRule = FxNormal
	}
	if s.BiType == "" {
		s.BiType = BiOld
	}
	if s.BiRange == "" {
		s.BiRange = RangeDD
	}
	if s.XdRange == "" {
		s.XdRange = RangeDD
	}
	if s.ZsRelation == "" {
		s.ZsRelation = RelationGGDD
	}
	if s.LdMetric == "" {
		s.LdMetric = MetricHistSum
	}
	if s.Mmd3Mode == "" {
		s.Mmd3Mode = Mmd3Outside
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func oneOf(key, val string, allowed ...string) error {
	for _, a := range allowed {
		if val == a {
			return nil
		}
	}
	return invalid(key, "取值 %q 不在 [%s] 中", val, strings.Join(allowed, ","))
}

// Validate 校验取值域，失败返回 *ConfigurationError。
func (s Settings) Validate() error {
	checks := []error{
		oneOf("fx_rule", s.FxRule, FxNormal, FxStrict),
		oneOf("bi_type", s.BiType, BiOld, BiNew, BiSimple, BiTopBottom),
		oneOf("bi_range", s.BiRange, RangeDD, RangeCK, RangeK),
		oneOf("xd_range", s.XdRange, RangeDD, RangeCK, RangeK),
		oneOf("zs_relation", s.ZsRelation, RelationGGDD, RelationZGZD, RelationZGDD),
		oneOf("ld_metric", s.LdMetric, MetricHistSum, MetricHistPeak),
		oneOf("mmd_3_mode", s.Mmd3Mode, Mmd3Outside, Mmd3Middle),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if s.FxMinStrength < 0 || s.FxMinStrength > 5 {
		return invalid("fx_min_strength", "需在 0..5 之间, 得到 %d", s.FxMinStrength)
	}
	if s.BiMinRaw < 1 {
		return invalid("bi_min_raw", "需 >= 1, 得到 %d", s.BiMinRaw)
	}
	if len(s.ZsBiTypes) == 0 {
		return invalid("zs_bi_types", "至少需要一种中枢算法")
	}
	for _, p := range s.ZsBiTypes {
		if err := oneOf("zs_bi_types", p, PolicyStandard, PolicyWithinSegment, PolicyDirectional, PolicyClassified); err != nil {
			return err
		}
	}
	if len(s.ZsXdTypes) == 0 {
		return invalid("zs_xd_types", "至少需要一种中枢算法")
	}
	for _, p := range s.ZsXdTypes {
		// 段内中枢只在笔级别有意义
		if err := oneOf("zs_xd_types", p, PolicyStandard, PolicyDirectional, PolicyClassified); err != nil {
			return err
		}
	}
	if s.ZsMinCoreRatio < 0 || s.ZsMinCoreRatio > 1 {
		return invalid("zs_min_core_ratio", "需在 0..1 之间, 得到 %v", s.ZsMinCoreRatio)
	}
	if s.ZsMaxLines != 0 && s.ZsMaxLines < 3 {
		return invalid("zs_max_lines", "为 0 或 >= 3, 得到 %d", s.ZsMaxLines)
	}
	if s.MacdFast <= 0 || s.MacdSlow <= 0 || s.MacdSignal <= 0 {
		return invalid("macd_fast", "MACD 周期需为正数")
	}
	if s.MacdFast >= s.MacdSlow {
		return invalid("macd_slow", "慢线周期(%d)需大于快线(%d)", s.MacdSlow, s.MacdFast)
	}
	if s.Mmd1MinPivots < 1 {
		return invalid("mmd_1_min_pivots", "需 >= 1, 得到 %d", s.Mmd1MinPivots)
	}
	if s.Mmd3MaxLines != 0 && s.Mmd3MaxLines < 3 {
		return invalid("mmd_3_max_lines", "为 0 或 >= 3, 得到 %d", s.Mmd3MaxLines)
	}
	if s.CacheSize < 0 || (s.CacheSize > 0 && s.CacheSize < MinCacheSize) {
		return invalid("cache_size", "为 0 或 >= %d, 得到 %d", MinCacheSize, s.CacheSize)
	}
	return nil
}

// Params 规范化的扁平表示，FromParams(s.Params()) 得到等价的 Settings。
func (s Settings) Params() map[string]interface{} {
	return map[string]interface{}{
		"fx_rule":            s.FxRule,
		"fx_equal":           s.FxEqual,
		"fx_min_strength":    s.FxMinStrength,
		"bi_type":            s.BiType,
		"bi_min_raw":         s.BiMinRaw,
		"bi_range":           s.BiRange,
		"xd_range":           s.XdRange,
		"xd_open_stroke":     s.XdOpenStroke,
		"zs_bi_types":        append([]string(nil), s.ZsBiTypes...),
		"zs_xd_types":        append([]string(nil), s.ZsXdTypes...),
		"zs_relation":        s.ZsRelation,
		"zs_touch":           s.ZsTouch,
		"zs_min_core_ratio":  s.ZsMinCoreRatio,
		"zs_max_lines":       s.ZsMaxLines,
		"macd_fast":          s.MacdFast,
		"macd_slow":          s.MacdSlow,
		"macd_signal":        s.MacdSignal,
		"ld_metric":          s.LdMetric,
		"bc_line":            s.BcLine,
		"bc_range":           s.BcRange,
		"bc_trend":           s.BcTrend,
		"bc_require_extreme": s.BcRequireExtreme,
		"mmd_1_from_range":   s.Mmd1FromRange,
		"mmd_1_min_pivots":   s.Mmd1MinPivots,
		"mmd_2_allow_equal":  s.Mmd2AllowEqual,
		"mmd_3_mode":         s.Mmd3Mode,
		"mmd_3_use_gg":       s.Mmd3UseGG,
		"mmd_3_max_lines":    s.Mmd3MaxLines,
		"mmd_23_merge":       s.Mmd23Merge,
		"mmd_like_second":    s.MmdLikeSecond,
		"mmd_like_third":     s.MmdLikeThird,
		"mmd_like_weaker":    s.MmdLikeWeaker,
		"cache_size":         s.CacheSize,
		"strict_keys":        s.StrictKeys,
	}
}

// Hash 规则包的稳定摘要，用作编译规则表与快照的缓存键。
func (s Settings) Hash() string {
	params := s.Params()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		v := params[k]
		if list, ok := v.([]string); ok {
			v = strings.Join(list, ",")
		}
		fmt.Fprintf(h, "%s=%v\n", k, v)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// HasPolicy 判断某级别是否启用了给定的中枢算法。
func (s Settings) HasPolicy(strokeLevel bool, policy string) bool {
	list := s.ZsXdTypes
	if strokeLevel {
		list = s.ZsBiTypes
	}
	for _, p := range list {
		if p == policy {
			return true
		}
	}
	return false
}
