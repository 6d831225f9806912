package chanlun

import (
	"encoding/json"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"chanlun/internal/config"
	"chanlun/internal/market"
)

func TestEngineEmptyInput(t *testing.T) {
	e := mustEngine(t, nil)
	d, err := e.Update(nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if d.State != StateEmpty || e.State() != StateEmpty {
		t.Fatalf("state = %v", d.State)
	}
	if len(e.Strokes()) != 0 || len(e.Segments()) != 0 || len(e.Pivots(LevelStroke, config.PolicyStandard)) != 0 {
		t.Fatal("empty engine returned structures")
	}
}

func TestEngineRejectsOutOfOrderBars(t *testing.T) {
	e := mustEngine(t, nil)
	bars := randomWalk(400, 1)
	if _, err := e.Update(bars); err != nil {
		t.Fatalf("update: %v", err)
	}
	strokes, segments := e.Strokes(), e.Segments()

	bad := []market.Candle{bars[len(bars)-1], bars[10]}
	bad[0].OpenTime += minute
	_, err := e.Update(bad)
	var orderErr *DataOrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("expected DataOrderError, got %v", err)
	}
	if len(e.Bars()) != len(bars) {
		t.Fatalf("bars changed: %d", len(e.Bars()))
	}
	if !reflect.DeepEqual(strokes, e.Strokes()) || !reflect.DeepEqual(segments, e.Segments()) {
		t.Fatal("structures changed after a rejected update")
	}
}

func TestEngineAppendEquivalence(t *testing.T) {
	bars := randomWalk(1500, 42)
	params := map[string]interface{}{
		"zs_bi_types":     "standard,within_segment,directional,classified",
		"zs_xd_types":     "standard,classified",
		"mmd_like_second": true,
		"mmd_like_third":  true,
	}

	batch := mustEngine(t, params)
	if _, err := batch.Update(bars); err != nil {
		t.Fatalf("batch update: %v", err)
	}
	if len(batch.Strokes()) < 10 {
		t.Fatalf("fixture too short: %d strokes", len(batch.Strokes()))
	}

	inc := mustEngine(t, params)
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < len(bars); {
		n := 1 + rng.Intn(25)
		if i+n > len(bars) {
			n = len(bars) - i
		}
		if _, err := inc.Update(bars[i : i+n]); err != nil {
			t.Fatalf("incremental update at %d: %v", i, err)
		}
		i += n
	}

	if !reflect.DeepEqual(batch.Candles(), inc.Candles()) {
		t.Fatal("candles differ")
	}
	if !reflect.DeepEqual(batch.Fractals(), inc.Fractals()) {
		t.Fatal("fractals differ")
	}
	if !reflect.DeepEqual(batch.Strokes(), inc.Strokes()) {
		t.Fatal("strokes differ")
	}
	if !reflect.DeepEqual(batch.Segments(), inc.Segments()) {
		t.Fatal("segments differ")
	}
	for _, key := range batch.PivotKeys() {
		if !reflect.DeepEqual(batch.Pivots(key.Level, key.Policy), inc.Pivots(key.Level, key.Policy)) {
			t.Fatalf("pivots differ for %v/%s", key.Level, key.Policy)
		}
	}
	if !reflect.DeepEqual(batch.AllBuySellPoints(), inc.AllBuySellPoints()) {
		t.Fatal("buy/sell points differ")
	}
	if !reflect.DeepEqual(batch.AllDivergences(), inc.AllDivergences()) {
		t.Fatal("divergences differ")
	}
}

func TestEngineConfirmationIsMonotonic(t *testing.T) {
	bars := randomWalk(2000, 17)
	e := mustEngine(t, nil)
	var doneStrokes []Stroke
	var doneSegments []Segment
	for i := 0; i < len(bars); i += 7 {
		end := min(i+7, len(bars))
		d, err := e.Update(bars[i:end])
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		strokes, segments := e.Strokes(), e.Segments()
		for k, st := range doneStrokes {
			if k >= len(strokes) || strokes[k] != st {
				t.Fatalf("confirmed stroke %d changed at bar %d", k, end)
			}
		}
		for k, g := range doneSegments {
			if k >= len(segments) || segments[k] != g {
				t.Fatalf("confirmed segment %d changed at bar %d", k, end)
			}
		}
		for _, k := range d.Strokes.Revised {
			if k < len(doneStrokes) {
				t.Fatalf("delta revised confirmed stroke %d", k)
			}
		}
		doneStrokes = doneStrokes[:0]
		for _, st := range strokes {
			if !st.Done {
				break
			}
			doneStrokes = append(doneStrokes, st)
		}
		doneSegments = doneSegments[:0]
		for _, g := range segments {
			if !g.Done {
				break
			}
			doneSegments = append(doneSegments, g)
		}
	}
	if len(doneStrokes) == 0 {
		t.Fatal("no stroke was ever confirmed")
	}
}

func TestEngineDelta(t *testing.T) {
	e := mustEngine(t, nil)
	bars := randomWalk(300, 2)
	d, err := e.Update(bars[:200])
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if d.State != StateSteady || d.Bars != 200 || d.Reset {
		t.Fatalf("delta = %+v", d)
	}
	if d.Candles.OldLen != 0 || d.Candles.Added() != len(e.Candles()) {
		t.Fatalf("candle change = %+v", d.Candles)
	}
	if _, ok := d.Pivots[PivotKey{Level: LevelStroke, Policy: config.PolicyStandard}]; !ok {
		t.Fatal("delta misses the stroke pivot change")
	}

	d, err = e.Update(bars[200:201])
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if d.Candles.OldLen == 0 || len(d.Candles.Revised) > 1 {
		t.Fatalf("a single bar revised %v", d.Candles.Revised)
	}
	if d.Candles.Added() > 1 {
		t.Fatalf("a single bar added %d candles", d.Candles.Added())
	}

	// 同一根 K 线重复推送不产生变化
	d, err = e.Update(bars[200:201])
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !d.Candles.Empty() || !d.Strokes.Empty() || d.Bars != 0 {
		t.Fatalf("duplicate bar changed state: %+v", d)
	}
}

func TestEngineBoundedRecompute(t *testing.T) {
	e := mustEngine(t, map[string]interface{}{"cache_size": 100})
	bars := randomWalk(160, 8)
	if _, err := e.Update(bars[:80]); err != nil {
		t.Fatalf("update: %v", err)
	}
	d, err := e.Update(bars[80:])
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !d.Reset {
		t.Fatal("expected a reset delta")
	}
	kept := e.Bars()
	if len(kept) != 75 || kept[0].OpenTime != bars[85].OpenTime {
		t.Fatalf("window = %d bars from %d", len(kept), kept[0].OpenTime)
	}
	fresh := mustEngine(t, map[string]interface{}{"cache_size": 100})
	if _, err := fresh.Update(bars[85:]); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !reflect.DeepEqual(fresh.Strokes(), e.Strokes()) {
		t.Fatal("bounded recompute differs from a cold start over the window")
	}
}

func TestEngineSnapshotRestore(t *testing.T) {
	e := mustEngine(t, map[string]interface{}{"bi_type": "new"}, WithInstrument("BTCUSDT", "15m"))
	if _, err := e.Update(randomWalk(600, 4)); err != nil {
		t.Fatalf("update: %v", err)
	}
	raw, err := json.Marshal(e.Snapshot())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.ConfigHash != e.ConfigHash() || snap.Symbol != "BTCUSDT" {
		t.Fatalf("snapshot header = %+v", snap)
	}

	r, err := Restore(snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if r.ID() != e.ID() || r.Interval() != "15m" || r.ConfigHash() != e.ConfigHash() {
		t.Fatalf("restored engine %s/%s/%s", r.ID(), r.Interval(), r.ConfigHash())
	}
	if !reflect.DeepEqual(r.Strokes(), e.Strokes()) || !reflect.DeepEqual(r.Segments(), e.Segments()) {
		t.Fatal("restored structures differ")
	}

	snap.Strokes[len(snap.Strokes)/2].High += 1
	_, err = Restore(snap)
	var drift *StructuralDriftError
	if !errors.As(err, &drift) {
		t.Fatalf("expected StructuralDriftError, got %v", err)
	}
}

func TestEngineRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CacheSize = 10
	_, err := New(cfg)
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Key != "cache_size" {
		t.Fatalf("expected cache_size error, got %v", err)
	}
}

func TestEngineClose(t *testing.T) {
	e := mustEngine(t, nil)
	if _, err := e.Update(randomWalk(50, 3)); err != nil {
		t.Fatalf("update: %v", err)
	}
	e.Close()
	if _, err := e.Update(randomWalk(51, 3)[50:]); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
	if len(e.Bars()) != 50 {
		t.Fatal("closed engine lost its data")
	}
}

type exitTagger struct{}

func (exitTagger) Name() string { return "exit_tagger" }

func (exitTagger) Apply(c *ClassifyContext, i int) []MMD {
	if c.Level() != LevelStroke {
		return nil
	}
	if p, ok := c.PivotExitingAt(i); ok {
		return []MMD{{Kind: pick(c.Line(i), Buy3Like, Sell3Like), Pivot: p.Index}}
	}
	return nil
}

func TestEngineCustomRule(t *testing.T) {
	e := mustEngine(t, nil, WithMMDRules(exitTagger{}))
	if _, err := e.Update(randomWalk(1500, 21)); err != nil {
		t.Fatalf("update: %v", err)
	}
	want := 0
	for _, p := range e.Pivots(LevelStroke, config.PolicyStandard) {
		if p.Exit >= 0 {
			want++
		}
	}
	got := 0
	for _, m := range e.AllBuySellPoints() {
		if m.Rule == "exit_tagger" {
			got++
			if len(e.BuySellPoints(m.Line)) == 0 {
				t.Fatalf("lookup by line misses %+v", m)
			}
		}
	}
	if got != want {
		t.Fatalf("custom rule tagged %d lines, want %d", got, want)
	}
}

func TestEngineDetectsStructuralDrift(t *testing.T) {
	bars := randomWalk(600, 5)
	cases := []struct {
		name    string
		entity  string
		corrupt func(e *Engine)
	}{
		{"bars", "合并K线", func(e *Engine) { e.bars = e.bars[:len(e.bars)-1] }},
		{"macd", "MACD", func(e *Engine) { e.macd.Hist = e.macd.Hist[:len(e.macd.Hist)-1] }},
		{"stroke", "笔", func(e *Engine) { e.strokes[len(e.strokes)-1].EndTime += minute * 1000 }},
		{"segment", "线段", func(e *Engine) { e.segments[0].EndTime++ }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := mustEngine(t, nil)
			if _, err := e.Update(bars); err != nil {
				t.Fatalf("update: %v", err)
			}
			if err := e.checkDrift(); err != nil {
				t.Fatalf("consistent engine reported %v", err)
			}
			if len(e.segments) == 0 {
				t.Fatal("fixture has no segment")
			}
			c.corrupt(e)
			var drift *StructuralDriftError
			if err := e.checkDrift(); !errors.As(err, &drift) || drift.Entity != c.entity {
				t.Fatalf("expected %s drift, got %v", c.entity, err)
			}
		})
	}
}

func TestEngineUpdateReturnsEmptyDeltaOnDrift(t *testing.T) {
	bars := randomWalk(3000, 5)
	e := mustEngine(t, nil)
	if _, err := e.Update(bars); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(e.gb.confirmed) == 0 {
		t.Fatal("fixture has no confirmed segment")
	}
	e.gb.confirmed[0].EndTime++

	last := bars[len(bars)-1]
	next := market.Candle{OpenTime: last.OpenTime + minute, Open: last.Close, High: last.Close + 1, Low: last.Close - 1, Close: last.Close, Volume: 1}
	d, err := e.Update([]market.Candle{next})
	var drift *StructuralDriftError
	if !errors.As(err, &drift) || drift.Entity != "线段" {
		t.Fatalf("expected segment drift, got %v", err)
	}
	if !reflect.DeepEqual(d, Delta{}) {
		t.Fatalf("drift returned a delta: %+v", d)
	}
}

func TestEngineDefaultWindowBoundsHistory(t *testing.T) {
	e := mustEngine(t, nil)
	bars := randomWalk(config.DefaultCacheSize+500, 21)
	resets := 0
	for i := 0; i < len(bars); i += 500 {
		d, err := e.Update(bars[i:min(i+500, len(bars))])
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if d.Reset {
			resets++
		}
		if n := len(e.Bars()); n > config.DefaultCacheSize {
			t.Fatalf("engine holds %d bars", n)
		}
	}
	if resets != 1 {
		t.Fatalf("expected one window reset, got %d", resets)
	}
}
