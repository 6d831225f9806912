package logger

import (
	"io"
	"os"
	"sync/atomic"
)

var global atomic.Pointer[Logger]

func init() {
	global.Store(New(os.Stderr, LevelInfo, false))
}

// Init 替换全局日志器；path 为空时只写 stderr。
func Init(path, level string, colour bool) error {
	lg := New(os.Stderr, ParseLevel(level), colour)
	if path != "" {
		var err error
		if lg, err = NewFile(path, ParseLevel(level), colour); err != nil {
			return err
		}
	}
	if old := global.Swap(lg); old != nil {
		_ = old.Close()
	}
	return nil
}

// SetOutput 将全局日志重定向到 w（测试中常用 io.Discard）。
func SetOutput(w io.Writer, level Level) {
	if old := global.Swap(New(w, level, false)); old != nil {
		_ = old.Close()
	}
}

func SetLevel(level Level) { global.Load().SetLevel(level) }

func Get() *Logger { return global.Load() }

func Debugf(format string, v ...any) { global.Load().Debugf(format, v...) }
func Infof(format string, v ...any)  { global.Load().Infof(format, v...) }
func Warnf(format string, v ...any)  { global.Load().Warnf(format, v...) }
func Errorf(format string, v ...any) { global.Load().Errorf(format, v...) }
