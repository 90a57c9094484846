// Package logger 基于 log/slog 提供进程级的结构化日志与审计日志。
// 普通日志用于运行观测，审计日志单独落盘并按大小轮转，记录管理
// 操作与费用结算等需要留痕的事件。
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config 描述日志初始化参数。
type Config struct {
	// Level 取值 debug/info/warn/error，默认 info。
	Level string
	// Format 取值 json/text，默认 json。
	Format string
	// OutputPaths 支持 stdout、stderr 或文件路径，为空时仅输出到 stdout。
	OutputPaths []string
	// Audit 控制审计日志。
	Audit AuditConfig
}

// AuditConfig 控制审计日志的落盘与轮转。
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	appLogger   *slog.Logger
	auditLogger *slog.Logger
	levelVar    slog.LevelVar
	sinks       []io.Closer
	setupOnce   sync.Once
	setupErr    error
)

// Init 初始化全局日志器。重复调用只有第一次生效。
func Init(cfg Config) error {
	setupOnce.Do(func() {
		levelVar.Set(parseLevel(cfg.Level))

		writer, err := combineOutputs(cfg.OutputPaths)
		if err != nil {
			setupErr = err
			return
		}
		opts := &slog.HandlerOptions{Level: &levelVar, AddSource: true}
		var handler slog.Handler
		if strings.EqualFold(cfg.Format, "text") {
			handler = slog.NewTextHandler(writer, opts)
		} else {
			handler = slog.NewJSONHandler(writer, opts)
		}
		appLogger = slog.New(handler)

		// 未开启审计时复用普通日志器，保证 Audit() 永远可用。
		auditLogger = appLogger
		if cfg.Audit.Enabled {
			audit, err := openAuditLogger(cfg.Audit)
			if err != nil {
				setupErr = err
				return
			}
			auditLogger = audit
		}
	})
	if setupErr != nil {
		return setupErr
	}
	if appLogger == nil {
		return errors.New("日志器已初始化")
	}
	return nil
}

// L 返回全局日志器，未初始化时按默认配置惰性初始化。
func L() *slog.Logger {
	if appLogger == nil {
		_ = Init(Config{})
	}
	return appLogger
}

// Named 返回带组件名分组的子日志器。
func Named(name string) *slog.Logger {
	return L().WithGroup(name)
}

// Audit 返回审计日志器。
func Audit() *slog.Logger {
	if auditLogger == nil {
		return L()
	}
	return auditLogger
}

// Sync 关闭所有文件输出，进程退出前调用。
func Sync() error {
	var err error
	for _, sink := range sinks {
		err = errors.Join(err, sink.Close())
	}
	sinks = nil
	return err
}

func combineOutputs(paths []string) (io.Writer, error) {
	if len(paths) == 0 {
		return os.Stdout, nil
	}
	writers := make([]io.Writer, 0, len(paths))
	for _, path := range paths {
		switch strings.ToLower(path) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("创建日志目录失败: %w", err)
			}
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("打开日志文件 %s 失败: %w", path, err)
			}
			sinks = append(sinks, file)
			writers = append(writers, file)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openAuditLogger(cfg AuditConfig) (*slog.Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("开启审计日志时必须指定路径")
	}
	writer, err := newRotatingWriter(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, writer)
	// 审计日志固定 JSON 格式、info 级别，便于离线检索。
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
