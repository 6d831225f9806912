package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFromParamsAppliesValues(t *testing.T) {
	s, err := FromParams(map[string]interface{}{
		"bi_type":           "NEW",
		"bi_min_raw":        "7",
		"fx_equal":          "true",
		"zs_bi_types":       []interface{}{"standard", "classified", "standard"},
		"zs_xd_types":       "standard,directional",
		"zs_min_core_ratio": 0.3,
		"macd_fast":         int64(5),
		"macd_slow":         float64(13),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.BiType != BiNew || s.BiMinRaw != 7 || !s.FxEqual {
		t.Fatalf("stroke rules not applied: %+v", s)
	}
	if len(s.ZsBiTypes) != 2 || s.ZsBiTypes[1] != PolicyClassified {
		t.Fatalf("zs_bi_types not deduped: %v", s.ZsBiTypes)
	}
	if len(s.ZsXdTypes) != 2 || s.ZsXdTypes[1] != PolicyDirectional {
		t.Fatalf("zs_xd_types not split: %v", s.ZsXdTypes)
	}
	if s.MacdFast != 5 || s.MacdSlow != 13 || s.MacdSignal != 9 {
		t.Fatalf("macd periods wrong: %d %d %d", s.MacdFast, s.MacdSlow, s.MacdSignal)
	}
}

func TestFromParamsRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]interface{}
		key    string
	}{
		{"unknown key", map[string]interface{}{"bi_typo": "old"}, "bi_typo"},
		{"bad enum", map[string]interface{}{"bi_type": "fancy"}, "bi_type"},
		{"bad int", map[string]interface{}{"bi_min_raw": "five"}, "bi_min_raw"},
		{"bad bool", map[string]interface{}{"zs_touch": "maybe"}, "zs_touch"},
		{"macd order", map[string]interface{}{"macd_fast": 30}, "macd_slow"},
		{"segment-only policy", map[string]interface{}{"zs_xd_types": "within_segment"}, "zs_xd_types"},
		{"small cache", map[string]interface{}{"cache_size": 10}, "cache_size"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromParams(tc.params)
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Key != tc.key {
				t.Fatalf("expected key %s, got %s", tc.key, cfgErr.Key)
			}
		})
	}
}

func TestUnknownKeySentinelAndLenientMode(t *testing.T) {
	_, err := FromParams(map[string]interface{}{"nope": 1})
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
	if _, err := FromParams(map[string]interface{}{"nope": 1, "strict_keys": false}); err != nil {
		t.Fatalf("lenient mode should ignore unknown keys: %v", err)
	}
}

func TestHashStableAndSensitive(t *testing.T) {
	a := Default()
	b, err := FromParams(a.Params())
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if a.Hash() != b.Hash() {
		t.Fatalf("hash differs after round trip: %s vs %s", a.Hash(), b.Hash())
	}
	c, _ := FromParams(map[string]interface{}{"bi_type": "simple"})
	if c.Hash() == a.Hash() {
		t.Fatalf("hash should change with bi_type")
	}
}

func TestProfileFileRoundTrip(t *testing.T) {
	for _, ext := range []string{".yaml", ".toml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "profiles"+ext)
			pf := NewProfileFile(path)
			err := pf.UpdateProfile("fast", Profile{
				Description: "short strokes",
				Params:      map[string]interface{}{"bi_type": "new", "bi_min_raw": 4, "zs_bi_types": []string{"standard", "classified"}},
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if err := pf.UpdateProfile("base", Profile{Default: true, Params: map[string]interface{}{"zs_min_core_ratio": 0.25}}); err != nil {
				t.Fatalf("update base: %v", err)
			}
			s, name, err := pf.Settings("")
			if err != nil {
				t.Fatalf("settings: %v", err)
			}
			if name != "base" || s.ZsMinCoreRatio != 0.25 {
				t.Fatalf("default profile wrong: %s %+v", name, s)
			}
			s, _, err = pf.Settings("fast")
			if err != nil {
				t.Fatalf("settings fast: %v", err)
			}
			if s.BiType != BiNew || s.BiMinRaw != 4 || len(s.ZsBiTypes) != 2 {
				t.Fatalf("fast profile wrong: %+v", s)
			}
			if err := pf.DeleteProfile("fast"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := pf.DeleteProfile("base"); err == nil {
				t.Fatalf("deleting the last profile should fail")
			}
			entries, err := os.ReadDir(filepath.Join(filepath.Dir(path), "backups"))
			if err != nil || len(entries) == 0 {
				t.Fatalf("expected backups, got %v %v", entries, err)
			}
		})
	}
}

func TestProfileFileRejectsUnknownFormat(t *testing.T) {
	pf := NewProfileFile(filepath.Join(t.TempDir(), "profiles.json"))
	if _, err := pf.Read(); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestDefaultCacheIsBounded(t *testing.T) {
	s := Default()
	if s.CacheSize != DefaultCacheSize || s.CacheSize < MinCacheSize {
		t.Fatalf("default cache_size = %d", s.CacheSize)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}
	unbounded, err := FromParams(map[string]interface{}{"cache_size": 0})
	if err != nil || unbounded.CacheSize != 0 {
		t.Fatalf("cache_size 0 should keep all history: %d %v", unbounded.CacheSize, err)
	}
}
