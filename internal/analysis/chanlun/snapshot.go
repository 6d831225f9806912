package chanlun

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"chanlun/internal/config"
	"chanlun/internal/market"
)

// Snapshot 引擎的可持久化状态：原始 K 线加上用于校验的笔与线段。
type Snapshot struct {
	ID         string                 `json:"id"`
	EngineID   string                 `json:"engine_id"`
	Symbol     string                 `json:"symbol"`
	Interval   string                 `json:"interval"`
	ConfigHash string                 `json:"config_hash"`
	Params     map[string]interface{} `json:"params"`
	Bars       []market.Candle        `json:"bars"`
	Strokes    []Stroke               `json:"strokes"`
	Segments   []Segment              `json:"segments"`
	CreatedAt  int64                  `json:"created_at"`
}

func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		ID:         uuid.NewString(),
		EngineID:   e.id,
		Symbol:     e.symbol,
		Interval:   e.interval,
		ConfigHash: e.r.hash,
		Params:     e.r.cfg.Params(),
		Bars:       e.Bars(),
		Strokes:    e.Strokes(),
		Segments:   e.Segments(),
		CreatedAt:  time.Now().UnixMilli(),
	}
}

// Restore 由快照重建引擎并与快照中的笔、线段逐一核对，不一致时返回 *StructuralDriftError。
func Restore(snap Snapshot, opts ...Option) (*Engine, error) {
	cfg, err := config.FromParams(snap.Params)
	if err != nil {
		return nil, fmt.Errorf("快照配置无效: %w", err)
	}
	if snap.ConfigHash != "" && cfg.Hash() != snap.ConfigHash {
		return nil, fmt.Errorf("快照配置哈希不一致: %s != %s", cfg.Hash(), snap.ConfigHash)
	}
	base := []Option{WithID(snap.EngineID), WithInstrument(snap.Symbol, snap.Interval)}
	e, err := New(cfg, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	if len(snap.Bars) == 0 {
		return e, nil
	}
	if _, err := e.Update(snap.Bars); err != nil {
		return nil, err
	}
	last := snap.Bars[len(snap.Bars)-1].OpenTime
	if k, ok := firstMismatch(snap.Strokes, e.strokes); ok {
		return nil, &StructuralDriftError{BarTime: last, EntityTime: strokeTime(snap.Strokes, e.strokes, k)}
	}
	if k, ok := firstMismatch(snap.Segments, e.segments); ok {
		return nil, &StructuralDriftError{BarTime: last, EntityTime: segmentTime(snap.Segments, e.segments, k)}
	}
	return e, nil
}

func firstMismatch[T comparable](want, got []T) (int, bool) {
	for i := 0; i < len(want) && i < len(got); i++ {
		if want[i] != got[i] {
			return i, true
		}
	}
	if len(want) != len(got) {
		return min(len(want), len(got)), true
	}
	return 0, false
}

func strokeTime(want, got []Stroke, k int) int64 {
	if k < len(want) {
		return want[k].EndTime
	}
	return got[k].EndTime
}

func segmentTime(want, got []Segment, k int) int64 {
	if k < len(want) {
		return want[k].EndTime
	}
	return got[k].EndTime
}
