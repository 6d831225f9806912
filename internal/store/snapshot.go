package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/logger"
)

// ErrSnapshotNotFound 指定键下没有保存过快照。
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotInfo 快照索引信息（不含数据体）。
type SnapshotInfo struct {
	ID         string
	Symbol     string
	Interval   string
	ConfigHash string
	Bars       int
	Strokes    int
	Segments   int
	CreatedAt  int64
	UpdatedAt  int64
}

// SnapshotStore 基于 sqlite 的引擎快照存储，每个 (symbol, interval, config_hash) 保留最新一份。
type SnapshotStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSnapshotStore 打开（必要时创建）sqlite 文件并建表。
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("快照库路径不能为空")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开快照库失败: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &SnapshotStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SnapshotStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS engine_snapshots (
            symbol      TEXT NOT NULL,
            interval    TEXT NOT NULL,
            config_hash TEXT NOT NULL,
            id          TEXT NOT NULL,
            engine_id   TEXT NOT NULL,
            bars        INTEGER NOT NULL DEFAULT 0,
            strokes     INTEGER NOT NULL DEFAULT 0,
            segments    INTEGER NOT NULL DEFAULT 0,
            payload     BLOB NOT NULL,
            created_at  INTEGER NOT NULL,
            updated_at  INTEGER NOT NULL,
            PRIMARY KEY (symbol, interval, config_hash)
        )`)
	if err != nil {
		return fmt.Errorf("创建快照表失败: %w", err)
	}
	return nil
}

func (s *SnapshotStore) conn() (*sql.DB, error) {
	if s == nil {
		return nil, fmt.Errorf("snapshot store 未初始化")
	}
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("snapshot store 已关闭")
	}
	return db, nil
}

// Save 写入快照，同键覆盖。
func (s *SnapshotStore) Save(ctx context.Context, snap chanlun.Snapshot) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	sym := strings.ToUpper(strings.TrimSpace(snap.Symbol))
	iv := strings.TrimSpace(snap.Interval)
	if sym == "" || iv == "" || snap.ConfigHash == "" {
		return fmt.Errorf("快照缺少 symbol/interval/config_hash")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}
	now := time.Now().UnixMilli()
	created := snap.CreatedAt
	if created == 0 {
		created = now
	}
	res, err := db.ExecContext(ctx, `
        UPDATE engine_snapshots
        SET id=?, engine_id=?, bars=?, strokes=?, segments=?, payload=?, created_at=?, updated_at=?
        WHERE symbol=? AND interval=? AND config_hash=?`,
		snap.ID, snap.EngineID, len(snap.Bars), len(snap.Strokes), len(snap.Segments), payload, created, now,
		sym, iv, snap.ConfigHash)
	if err != nil {
		return err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		_, err = db.ExecContext(ctx, `
            INSERT INTO engine_snapshots
                (symbol, interval, config_hash, id, engine_id, bars, strokes, segments, payload, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sym, iv, snap.ConfigHash, snap.ID, snap.EngineID, len(snap.Bars), len(snap.Strokes), len(snap.Segments),
			payload, created, now)
		if err != nil {
			return err
		}
	}
	logger.Debugf("[snapshot] 保存 %s@%s (%s) bars=%d", sym, iv, snap.ConfigHash, len(snap.Bars))
	return nil
}

// Load 读取快照，不存在时返回 ErrSnapshotNotFound。
func (s *SnapshotStore) Load(ctx context.Context, symbol, interval, hash string) (chanlun.Snapshot, error) {
	db, err := s.conn()
	if err != nil {
		return chanlun.Snapshot{}, err
	}
	var payload []byte
	err = db.QueryRowContext(ctx, `
        SELECT payload FROM engine_snapshots
        WHERE symbol=? AND interval=? AND config_hash=?`,
		strings.ToUpper(strings.TrimSpace(symbol)), strings.TrimSpace(interval), hash).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return chanlun.Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return chanlun.Snapshot{}, err
	}
	var snap chanlun.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return chanlun.Snapshot{}, fmt.Errorf("解析快照失败: %w", err)
	}
	return snap, nil
}

// List 返回全部快照索引，按 symbol、interval 排序。
func (s *SnapshotStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
        SELECT id, symbol, interval, config_hash, bars, strokes, segments, created_at, updated_at
        FROM engine_snapshots ORDER BY symbol, interval, config_hash`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.Symbol, &info.Interval, &info.ConfigHash,
			&info.Bars, &info.Strokes, &info.Segments, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete 删除某个品种周期下的快照；hash 为空时删除所有配置。
func (s *SnapshotStore) Delete(ctx context.Context, symbol, interval, hash string) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	query := `DELETE FROM engine_snapshots WHERE symbol=? AND interval=?`
	args := []interface{}{strings.ToUpper(strings.TrimSpace(symbol)), strings.TrimSpace(interval)}
	if hash != "" {
		query += ` AND config_hash=?`
		args = append(args, hash)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SnapshotStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}
