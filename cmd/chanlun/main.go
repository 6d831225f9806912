package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chanlun/internal/analysis/chanlun"
	"chanlun/internal/config"
	"chanlun/internal/logger"
	"chanlun/internal/market"
	"chanlun/internal/runner"
	"chanlun/internal/store"
)

type paramFlags map[string]interface{}

func (p paramFlags) String() string { return fmt.Sprint(map[string]interface{}(p)) }

func (p paramFlags) Set(raw string) error {
	k, v, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("参数格式应为 key=value: %q", raw)
	}
	p[strings.TrimSpace(k)] = strings.TrimSpace(v)
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "警告: 加载 .env 失败: %v\n", err)
	}

	params := paramFlags{}
	symbol := flag.String("symbol", "", "品种名，默认取自文件名 (BTCUSDT_1h.csv)")
	interval := flag.String("interval", "", "周期，默认取自文件名")
	profiles := flag.String("profiles", os.Getenv("CHANLUN_PROFILES"), "规则档案文件 (.yaml/.toml)")
	profile := flag.String("profile", os.Getenv("CHANLUN_PROFILE"), "档案名，空则取 default 档案")
	dbPath := flag.String("db", os.Getenv("CHANLUN_DB"), "sqlite 快照库路径，空则不持久化")
	level := flag.String("log-level", envOr("CHANLUN_LOG_LEVEL", "info"), "日志级别 debug/info/warn/error")
	logFile := flag.String("log-file", os.Getenv("CHANLUN_LOG_FILE"), "日志文件，空则只输出到终端")
	tz := flag.String("tz", envOr("CHANLUN_TZ", "UTC"), "CSV 日期列的时区")
	show := flag.String("show", "summary,strokes,segments,pivots,mmd,bc", "输出的表格")
	rows := flag.Int("rows", 12, "每张表最多显示的行数（取最近的）")
	parallel := flag.Int("parallel", 4, "并发处理的品种数")
	flag.Var(params, "param", "覆盖单个配置项 key=value，可重复")
	flag.Parse()

	if err := logger.Init(*logFile, *level, *logFile == ""); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "用法: chanlun [flags] file.csv ...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := runTo(ctx, os.Stdout, options{
		files:    flag.Args(),
		symbol:   *symbol,
		interval: *interval,
		profiles: *profiles,
		profile:  *profile,
		params:   params,
		dbPath:   *dbPath,
		tz:       *tz,
		show:     *show,
		rows:     *rows,
		parallel: *parallel,
	}); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

type options struct {
	files    []string
	symbol   string
	interval string
	profiles string
	profile  string
	params   map[string]interface{}
	dbPath   string
	tz       string
	show     string
	rows     int
	parallel int
}

func runTo(ctx context.Context, w io.Writer, opts options) error {
	cfg, name, err := loadSettings(opts.profiles, opts.profile, opts.params)
	if err != nil {
		return err
	}
	logger.Infof("规则档案 %s, 配置哈希 %s", name, cfg.Hash())

	loc, err := time.LoadLocation(opts.tz)
	if err != nil {
		return fmt.Errorf("时区 %q 无效: %w", opts.tz, err)
	}

	klines := store.NewMemoryKlineStore()
	var list []runner.Instrument
	for _, path := range opts.files {
		in, err := loadFile(ctx, klines, path, opts.symbol, opts.interval, loc)
		if err != nil {
			return err
		}
		list = append(list, in)
	}

	runOpts := []runner.Option{runner.WithParallel(opts.parallel)}
	if opts.dbPath != "" {
		snaps, err := store.OpenSnapshotStore(opts.dbPath)
		if err != nil {
			return err
		}
		defer snaps.Close()
		runOpts = append(runOpts, runner.WithSnapshots(snaps))
	}
	r, err := runner.New(chanlun.NewRegistry(), klines, cfg, runOpts...)
	if err != nil {
		return err
	}
	results, err := r.Run(ctx, list)
	if err != nil {
		return err
	}

	sections := parseSections(opts.show)
	for _, res := range results {
		if res.Err != nil {
			logger.Warnf("%s: %v", res.Instrument, res.Err)
			if res.Engine == nil {
				continue
			}
		}
		render(w, res, sections, opts.rows)
	}
	return nil
}

// loadSettings 档案 + 命令行覆盖项；未指定档案文件时使用默认配置。
func loadSettings(path, name string, overrides map[string]interface{}) (config.Settings, string, error) {
	cfg, used := config.Default(), "builtin"
	if path != "" {
		var err error
		cfg, used, err = config.NewProfileFile(path).Settings(name)
		if err != nil {
			return config.Settings{}, "", err
		}
	}
	if len(overrides) == 0 {
		return cfg, used, nil
	}
	merged := cfg.Params()
	for k, v := range overrides {
		merged[k] = v
	}
	out, err := config.FromParams(merged)
	if err != nil {
		return config.Settings{}, "", err
	}
	return out, used + "+overrides", nil
}

func loadFile(ctx context.Context, klines *store.MemoryKlineStore, path, symbol, interval string, loc *time.Location) (runner.Instrument, error) {
	f, err := os.Open(path)
	if err != nil {
		return runner.Instrument{}, fmt.Errorf("打开 %s 失败: %w", path, err)
	}
	defer f.Close()
	bars, err := market.ReadCandleCSV(f, loc)
	if err != nil {
		return runner.Instrument{}, fmt.Errorf("解析 %s 失败: %w", path, err)
	}

	fileSym, fileIv := instrumentFromName(path)
	if symbol == "" {
		symbol = fileSym
	}
	if interval == "" {
		interval = fileIv
	}
	if symbol == "" || interval == "" {
		return runner.Instrument{}, fmt.Errorf("%s: 无法从文件名推断品种周期，请使用 -symbol/-interval", path)
	}
	if tf, err := market.ParseTimeframe(interval); err == nil {
		if rep := market.CheckIntegrity(bars, tf); !rep.Complete() {
			logger.Warnf("%s@%s 缺少 %d 根K线（%d 处缺口）", symbol, interval, rep.Expected-rep.Present, len(rep.Gaps))
		}
	} else {
		logger.Warnf("%s: 周期 %q 无法识别，跳过完整性检查", path, interval)
	}
	if err := klines.Set(ctx, symbol, interval, bars); err != nil {
		return runner.Instrument{}, err
	}
	logger.Infof("载入 %s@%s %d 根K线", symbol, interval, len(bars))
	return runner.Instrument{Symbol: symbol, Interval: interval}, nil
}

// instrumentFromName BTCUSDT_1h.csv -> (BTCUSDT, 1h)
func instrumentFromName(path string) (string, string) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sym, iv, ok := strings.Cut(base, "_")
	if !ok {
		return strings.ToUpper(base), ""
	}
	return strings.ToUpper(sym), iv
}

func parseSections(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out[s] = true
		}
	}
	if out["all"] {
		for _, s := range []string{"summary", "strokes", "segments", "pivots", "mmd", "bc", "indicators"} {
			out[s] = true
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
