package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/config"
	"chanlun/internal/logger"
	"chanlun/internal/store"
)

// Instrument 一个品种周期。
type Instrument struct {
	Symbol   string
	Interval string
}

func (i Instrument) String() string { return i.Symbol + "@" + i.Interval }

// Result 单个品种周期的一次推进结果。Err 只影响该品种，不中断其他品种。
type Result struct {
	Instrument Instrument
	Engine     *chanlun.Engine
	Delta      chanlun.Delta
	Restored   bool
	Err        error
}

// Runner 从 K 线仓库读取新数据，为每个品种周期推进一个引擎。
// 同一引擎只会被一个 goroutine 使用。
type Runner struct {
	reg       *chanlun.Registry
	klines    store.KlineStore
	snapshots *store.SnapshotStore
	cfg       config.Settings
	parallel  int
}

type Option func(*Runner)

// WithSnapshots 启用快照：首次推进前尝试恢复，推进后写回。
func WithSnapshots(s *store.SnapshotStore) Option {
	return func(r *Runner) { r.snapshots = s }
}

// WithParallel 同时推进的品种数上限，<=0 表示不限。
func WithParallel(n int) Option {
	return func(r *Runner) { r.parallel = n }
}

func New(reg *chanlun.Registry, klines store.KlineStore, cfg config.Settings, opts ...Option) (*Runner, error) {
	if reg == nil || klines == nil {
		return nil, fmt.Errorf("runner 需要 registry 与 kline store")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{reg: reg, klines: klines, cfg: cfg, parallel: 4}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Normalize 去掉空项与重复项，symbol 统一大写。
func Normalize(list []Instrument) []Instrument {
	seen := make(map[Instrument]bool, len(list))
	out := make([]Instrument, 0, len(list))
	for _, in := range list {
		in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
		in.Interval = strings.TrimSpace(in.Interval)
		if in.Symbol == "" || in.Interval == "" || seen[in] {
			continue
		}
		seen[in] = true
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Interval < out[j].Interval
	})
	return out
}

// Run 并发推进所有品种，结果顺序与 Normalize 后的列表一致。只有 ctx 取消会返回错误。
func (r *Runner) Run(ctx context.Context, list []Instrument) ([]Result, error) {
	list = Normalize(list)
	results := make([]Result, len(list))
	g, gctx := errgroup.WithContext(ctx)
	if r.parallel > 0 {
		g.SetLimit(r.parallel)
	}
	for i, in := range list {
		i, in := i, in
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.step(gctx, in)
			if res := results[i]; res.Err != nil {
				logger.Warnf("[runner] %s 推进失败: %v", in, res.Err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) step(ctx context.Context, in Instrument) Result {
	res := Result{Instrument: in}
	e, restored, err := r.engine(ctx, in)
	if err != nil {
		res.Err = err
		return res
	}
	res.Engine, res.Restored = e, restored

	after := int64(math.MinInt64)
	if bars := e.Bars(); len(bars) > 0 {
		after = bars[len(bars)-1].OpenTime
	}
	fresh, err := r.klines.Since(ctx, in.Symbol, in.Interval, after)
	if err != nil {
		res.Err = fmt.Errorf("读取K线失败: %w", err)
		return res
	}
	delta, err := e.Update(fresh)
	res.Delta = delta
	if err != nil {
		res.Err = err
		return res
	}
	if r.snapshots != nil && len(fresh) > 0 {
		if err := r.snapshots.Save(ctx, e.Snapshot()); err != nil {
			res.Err = fmt.Errorf("保存快照失败: %w", err)
		}
	}
	return res
}

// engine 返回注册表中的引擎；首次出现且有快照时先从快照恢复。
func (r *Runner) engine(ctx context.Context, in Instrument) (*chanlun.Engine, bool, error) {
	key := chanlun.Key{Symbol: in.Symbol, Interval: in.Interval, Hash: r.cfg.Hash()}
	if e, ok := r.reg.Lookup(key); ok {
		return e, false, nil
	}
	if r.snapshots != nil {
		snap, err := r.snapshots.Load(ctx, in.Symbol, in.Interval, key.Hash)
		switch {
		case err == nil:
			e, rerr := chanlun.Restore(snap)
			if rerr == nil {
				r.reg.Adopt(e)
				logger.Infof("[runner] %s 从快照恢复, bars=%d", in, len(snap.Bars))
				return e, true, nil
			}
			logger.Warnf("[runner] %s 快照恢复失败, 重新计算: %v", in, rerr)
		case !errors.Is(err, store.ErrSnapshotNotFound):
			return nil, false, err
		}
	}
	e, err := r.reg.Get(in.Symbol, in.Interval, r.cfg)
	return e, false, err
}
