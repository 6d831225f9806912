package chanlun

import (
	"sync"

	"chanlun/internal/config"
)

// Key 引擎的唯一标识。
type Key struct {
	Symbol   string
	Interval string
	Hash     string
}

// Registry 按 (品种, 周期, 配置哈希) 管理引擎；编译后的规则表按配置哈希共享。
type Registry struct {
	mu      sync.Mutex
	engines map[Key]*Engine
	rules   map[string]*ruleSet
	extra   []MMDRule
}

func NewRegistry(extra ...MMDRule) *Registry {
	return &Registry{
		engines: make(map[Key]*Engine),
		rules:   make(map[string]*ruleSet),
		extra:   extra,
	}
}

// Get 返回已有引擎，不存在时创建。
func (r *Registry) Get(symbol, interval string, cfg config.Settings) (*Engine, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key := Key{Symbol: symbol, Interval: interval, Hash: cfg.Hash()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[key]; ok {
		return e, nil
	}
	rs, ok := r.rules[key.Hash]
	if !ok {
		rs = compileRules(cfg)
		r.rules[key.Hash] = rs
	}
	e, err := New(cfg, withRuleSet(rs), WithInstrument(symbol, interval), WithMMDRules(r.extra...))
	if err != nil {
		return nil, err
	}
	r.engines[key] = e
	return e, nil
}

func (r *Registry) Lookup(key Key) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[key]
	return e, ok
}

// Adopt 登记一个外部创建（例如从快照恢复）的引擎，替换同键的旧引擎。
func (r *Registry) Adopt(e *Engine) Key {
	key := Key{Symbol: e.symbol, Interval: e.interval, Hash: e.r.hash}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.engines[key]; ok && old != e {
		old.Close()
	}
	if _, ok := r.rules[key.Hash]; !ok {
		r.rules[key.Hash] = e.r
	}
	r.engines[key] = e
	return key
}

// Invalidate 关闭并移除某个品种周期下的所有引擎，返回移除数量。
func (r *Registry) Invalidate(symbol, interval string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, e := range r.engines {
		if key.Symbol == symbol && key.Interval == interval {
			e.Close()
			delete(r.engines, key)
			n++
		}
	}
	return n
}

// InvalidateConfig 移除使用某个配置的所有引擎以及对应的规则表。
func (r *Registry) InvalidateConfig(hash string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, e := range r.engines {
		if key.Hash == hash {
			e.Close()
			delete(r.engines, key)
			n++
		}
	}
	delete(r.rules, hash)
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Keys 当前登记的全部键。
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]Key, 0, len(r.engines))
	for k := range r.engines {
		keys = append(keys, k)
	}
	return keys
}
