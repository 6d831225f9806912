package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"chanlun/internal/market"
)

// KlineStore 按 symbol+interval 保存原始 K 线窗口，供引擎增量读取。
type KlineStore interface {
	Put(ctx context.Context, symbol, interval string, ks []market.Candle, max int) error
	Get(ctx context.Context, symbol, interval string) ([]market.Candle, error)
	Since(ctx context.Context, symbol, interval string, after int64) ([]market.Candle, error)
}

// MemoryKlineStore 内存实现
type MemoryKlineStore struct {
	mu   sync.RWMutex
	data map[string][]market.Candle
}

func NewMemoryKlineStore() *MemoryKlineStore {
	return &MemoryKlineStore{data: make(map[string][]market.Candle)}
}

func key(symbol, interval string) string {
	return strings.ToUpper(strings.TrimSpace(symbol)) + "@" + strings.TrimSpace(interval)
}

func checkKey(symbol, interval string) error {
	if strings.TrimSpace(symbol) == "" || strings.TrimSpace(interval) == "" {
		return errors.New("symbol/interval 不能为空")
	}
	return nil
}

// Put 按开盘时间合并并裁剪到最近 max 根；同一时间戳覆盖旧值，乱序数据插入到正确位置。
func (s *MemoryKlineStore) Put(ctx context.Context, symbol, interval string, ks []market.Candle, max int) error {
	if err := checkKey(symbol, interval); err != nil {
		return err
	}
	if len(ks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(symbol, interval)
	cur := s.data[k]
	for _, candle := range ks {
		n := len(cur)
		switch {
		case n == 0 || cur[n-1].OpenTime < candle.OpenTime:
			cur = append(cur, candle)
		case cur[n-1].OpenTime == candle.OpenTime:
			// 同一根 K 线的增量更新，覆盖末尾而非重复追加。
			cur[n-1] = candle
		default:
			i := sort.Search(n, func(i int) bool { return cur[i].OpenTime >= candle.OpenTime })
			if cur[i].OpenTime == candle.OpenTime {
				cur[i] = candle
				continue
			}
			cur = append(cur, market.Candle{})
			copy(cur[i+1:], cur[i:])
			cur[i] = candle
		}
	}
	if max > 0 && len(cur) > max {
		cur = append([]market.Candle(nil), cur[len(cur)-max:]...)
	}
	s.data[k] = cur
	return nil
}

// Set 全量替换指定 symbol+interval 的序列
func (s *MemoryKlineStore) Set(ctx context.Context, symbol, interval string, ks []market.Candle) error {
	if err := checkKey(symbol, interval); err != nil {
		return err
	}
	dst := make([]market.Candle, len(ks))
	copy(dst, ks)
	sort.SliceStable(dst, func(i, j int) bool { return dst[i].OpenTime < dst[j].OpenTime })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key(symbol, interval)] = dst
	return nil
}

// Get 返回拷贝
func (s *MemoryKlineStore) Get(ctx context.Context, symbol, interval string) ([]market.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.data[key(symbol, interval)]
	out := make([]market.Candle, len(cur))
	copy(out, cur)
	return out, nil
}

// Since 返回开盘时间晚于 after 的 K 线（按时间升序），引擎据此只推送新数据。
func (s *MemoryKlineStore) Since(ctx context.Context, symbol, interval string, after int64) ([]market.Candle, error) {
	if err := checkKey(symbol, interval); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.data[key(symbol, interval)]
	i := sort.Search(len(cur), func(i int) bool { return cur[i].OpenTime > after })
	if i == len(cur) {
		return nil, nil
	}
	out := make([]market.Candle, len(cur)-i)
	copy(out, cur[i:])
	return out, nil
}

// Export 返回最近 limit 根 K 线（按时间升序）
func (s *MemoryKlineStore) Export(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if err := checkKey(symbol, interval); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur := s.data[key(symbol, interval)]
	if len(cur) == 0 {
		return nil, nil
	}
	if limit > len(cur) {
		limit = len(cur)
	}
	out := make([]market.Candle, limit)
	copy(out, cur[len(cur)-limit:])
	return out, nil
}

// Keys 已保存的 symbol@interval 列表，排序后返回。
func (s *MemoryKlineStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
