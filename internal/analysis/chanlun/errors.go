package chanlun

import (
	"errors"
	"fmt"
	"time"
)

// ErrEngineClosed 引擎已从注册表移除。
var ErrEngineClosed = errors.New("chanlun engine closed")

// DataOrderError 输入 K 线时间倒序或同一时间戳数据冲突。
type DataOrderError struct {
	Index int // 在本批数据中的位置
	Prev  int64
	Got   int64
}

func (e *DataOrderError) Error() string {
	if e.Prev == e.Got {
		return fmt.Sprintf("K线数据冲突: 第 %d 根与已有数据时间相同(%s)但 OHLCV 不同", e.Index, fmtMillis(e.Got))
	}
	return fmt.Sprintf("K线时间倒序: 第 %d 根 %s 早于 %s", e.Index, fmtMillis(e.Got), fmtMillis(e.Prev))
}

// StructuralDriftError 结构末端与原始 K 线或上一层结构不一致。
type StructuralDriftError struct {
	Entity     string
	BarTime    int64
	EntityTime int64
}

func (e *StructuralDriftError) Error() string {
	entity := e.Entity
	if entity == "" {
		entity = "结构"
	}
	return fmt.Sprintf("结构漂移: 最后一根K线 %s, %s末端 %s", fmtMillis(e.BarTime), entity, fmtMillis(e.EntityTime))
}

// ProvenanceError 特征序列元素无法追溯到原始笔，只记录日志，不向调用方返回。
type ProvenanceError struct {
	Segment int
	Entry   SeqEntry
}

func (e *ProvenanceError) Error() string {
	return fmt.Sprintf("线段 %d: 特征序列元素 [%d,%d] 极值笔 %d 无法追溯到线段终点", e.Segment, e.Entry.First, e.Entry.Last, e.Entry.Peak)
}

func fmtMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}
