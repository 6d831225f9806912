package chanlun

import (
	"errors"
	"testing"

	"chanlun/internal/config"
)

func TestRegistryReusesEngines(t *testing.T) {
	reg := NewRegistry()
	cfg := config.Default()
	a, err := reg.Get("BTCUSDT", "1h", cfg)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := reg.Get("BTCUSDT", "1h", cfg)
	if a != b {
		t.Fatal("same key returned different engines")
	}
	c, _ := reg.Get("ETHUSDT", "1h", cfg)
	if c == a || c.r != a.r {
		t.Fatal("engines with one config should share compiled rules only")
	}
	other := cfg
	other.BiType = config.BiNew
	d, _ := reg.Get("BTCUSDT", "1h", other)
	if d == a || d.ConfigHash() == a.ConfigHash() {
		t.Fatal("different config must create a new engine")
	}
	if reg.Len() != 3 || len(reg.Keys()) != 3 {
		t.Fatalf("registry holds %d engines", reg.Len())
	}
	if e, ok := reg.Lookup(Key{Symbol: "ETHUSDT", Interval: "1h", Hash: cfg.Hash()}); !ok || e != c {
		t.Fatal("lookup by key failed")
	}
}

func TestRegistryInvalidate(t *testing.T) {
	reg := NewRegistry()
	cfg := config.Default()
	a, _ := reg.Get("BTCUSDT", "1h", cfg)
	other := cfg
	other.ZsRelation = config.RelationZGZD
	b, _ := reg.Get("BTCUSDT", "1h", other)
	c, _ := reg.Get("BTCUSDT", "4h", cfg)

	if n := reg.Invalidate("BTCUSDT", "1h"); n != 2 {
		t.Fatalf("invalidated %d engines, want 2", n)
	}
	for _, e := range []*Engine{a, b} {
		if _, err := e.Update(randomWalk(10, 1)); !errors.Is(err, ErrEngineClosed) {
			t.Fatalf("invalidated engine still accepts bars: %v", err)
		}
	}
	if _, err := c.Update(randomWalk(10, 1)); err != nil {
		t.Fatalf("unrelated engine closed: %v", err)
	}
	if n := reg.InvalidateConfig(cfg.Hash()); n != 1 || reg.Len() != 0 {
		t.Fatalf("config invalidation removed %d, %d left", n, reg.Len())
	}
}

func TestRegistryAdoptReplaces(t *testing.T) {
	reg := NewRegistry()
	old, _ := reg.Get("BTCUSDT", "1h", config.Default())
	e := mustEngine(t, nil, WithInstrument("BTCUSDT", "1h"))
	key := reg.Adopt(e)
	if got, _ := reg.Lookup(key); got != e {
		t.Fatal("adopted engine not registered")
	}
	if _, err := old.Update(randomWalk(5, 1)); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("replaced engine should be closed, got %v", err)
	}
}

func TestRegistryRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MacdFast = 30
	if _, err := NewRegistry().Get("BTCUSDT", "1h", cfg); err == nil {
		t.Fatal("expected configuration error")
	}
}
