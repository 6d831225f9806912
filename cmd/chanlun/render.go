package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/analysis/indicator"
	"chanlun/internal/runner"
)

func render(w io.Writer, res runner.Result, sections map[string]bool, rows int) {
	e := res.Engine
	title := res.Instrument.String()
	if sections["summary"] {
		renderSummary(w, title, res)
	}
	if sections["strokes"] {
		renderStrokes(w, title, e.Strokes(), rows)
	}
	if sections["segments"] {
		renderSegments(w, title, e.Segments(), rows)
	}
	if sections["pivots"] {
		for _, key := range e.PivotKeys() {
			renderPivots(w, fmt.Sprintf("%s %s/%s", title, key.Level, key.Policy), e.Pivots(key.Level, key.Policy), rows)
		}
	}
	if sections["mmd"] {
		renderMMDs(w, title, e.AllBuySellPoints(), rows)
	}
	if sections["bc"] {
		renderDivergences(w, title, e.AllDivergences(), rows)
	}
	if sections["indicators"] {
		renderIndicators(w, res)
	}
}

func newTable(w io.Writer, title string, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	t.AppendHeader(header)
	return t
}

// tail 最近 n 项的起始下标。
func tail(total, n int) int {
	if n <= 0 || total <= n {
		return 0
	}
	return total - n
}

func ts(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

func doneMark(done bool) string {
	if done {
		return "✓"
	}
	return "…"
}

func renderSummary(w io.Writer, title string, res runner.Result) {
	e := res.Engine
	t := newTable(w, title+" 概览", table.Row{"项目", "数值"})
	d := res.Delta
	t.AppendRows([]table.Row{
		{"engine", e.ID()},
		{"config", e.ConfigHash()},
		{"state", e.State()},
		{"restored", res.Restored},
		{"bars (本次)", fmt.Sprintf("%d (+%d)", len(e.Bars()), d.Bars)},
		{"candles", len(e.Candles())},
		{"fractals", len(e.Fractals())},
		{"strokes", fmt.Sprintf("%d (+%d -%d ~%d)", len(e.Strokes()), d.Strokes.Added(), d.Strokes.Removed(), len(d.Strokes.Revised))},
		{"segments", fmt.Sprintf("%d (+%d -%d ~%d)", len(e.Segments()), d.Segments.Added(), d.Segments.Removed(), len(d.Segments.Revised))},
		{"mmd", len(e.AllBuySellPoints())},
		{"bc", len(e.AllDivergences())},
	})
	if res.Err != nil {
		t.AppendRow(table.Row{"error", res.Err.Error()})
	}
	t.Render()
}

func renderStrokes(w io.Writer, title string, strokes []chanlun.Stroke, rows int) {
	t := newTable(w, title+" 笔", table.Row{"#", "dir", "start", "end", "low", "high", "done"})
	for _, s := range strokes[tail(len(strokes), rows):] {
		t.AppendRow(table.Row{s.Index, s.Dir, ts(s.StartTime), ts(s.EndTime), s.Low, s.High, doneMark(s.Done)})
	}
	t.Render()
}

func renderSegments(w io.Writer, title string, segs []chanlun.Segment, rows int) {
	t := newTable(w, title+" 线段", table.Row{"#", "dir", "strokes", "start", "end", "low", "high", "reason", "done"})
	for _, s := range segs[tail(len(segs), rows):] {
		t.AppendRow(table.Row{
			s.Index, s.Dir, fmt.Sprintf("%d-%d", s.Start, s.End), ts(s.StartTime), ts(s.EndTime),
			s.Low, s.High, s.Reason, doneMark(s.Done),
		})
	}
	t.Render()
}

func renderPivots(w io.Writer, title string, pivots []chanlun.Pivot, rows int) {
	t := newTable(w, title+" 中枢", table.Row{"#", "lines", "entry", "exit", "ZD", "ZG", "DD", "GG", "type", "depth", "done"})
	for _, p := range pivots[tail(len(pivots), rows):] {
		t.AppendRow(table.Row{
			p.Index, fmt.Sprintf("%d-%d", p.First, p.Last), ref(p.Entry), ref(p.Exit),
			p.ZD, p.ZG, p.DD, p.GG, p.Type, p.Depth, doneMark(p.Done),
		})
	}
	t.Render()
}

func ref(i int) string {
	if i < 0 {
		return "-"
	}
	return fmt.Sprint(i)
}

func renderMMDs(w io.Writer, title string, mmds []chanlun.MMD, rows int) {
	t := newTable(w, title+" 买卖点", table.Row{"line", "kind", "policy", "pivot", "rule"})
	for _, m := range mmds[tail(len(mmds), rows):] {
		t.AppendRow(table.Row{fmt.Sprintf("%s#%d", m.Line.Level, m.Line.Index), m.Kind, m.Policy, ref(m.Pivot), m.Rule})
	}
	t.Render()
}

func renderDivergences(w io.Writer, title string, bcs []chanlun.Divergence, rows int) {
	t := newTable(w, title+" 背驰", table.Row{"line", "kind", "vs", "force", "prev", "result"})
	for _, d := range bcs[tail(len(bcs), rows):] {
		t.AppendRow(table.Row{
			fmt.Sprintf("%s#%d", d.Line.Level, d.Line.Index), d.Kind, d.Compare.Index,
			fmt.Sprintf("%.4f", d.Force), fmt.Sprintf("%.4f", d.PrevForce), d.Result,
		})
	}
	t.Render()
}

func renderIndicators(w io.Writer, res runner.Result) {
	e := res.Engine
	cfg := e.Settings()
	rep, err := indicator.ComputeAll(e.Bars(), indicator.Settings{
		Symbol:   res.Instrument.Symbol,
		Interval: res.Instrument.Interval,
		MACD:     indicator.MACDSettings{Fast: cfg.MacdFast, Slow: cfg.MacdSlow, Signal: cfg.MacdSignal},
	})
	if err != nil {
		return
	}
	t := newTable(w, res.Instrument.String()+" 指标", table.Row{"name", "latest", "state", "note"})
	names := make([]string, 0, len(rep.Values))
	for name := range rep.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := rep.Values[name]
		t.AppendRow(table.Row{name, v.Latest, v.State, v.Note})
	}
	t.Render()
}
