package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"ai_tips_engine/config"
)

// Logger 全局日志记录器，Init之前退回slog默认输出
var Logger = slog.Default()

// Init 根据配置初始化slog日志系统
func Init(cfg *config.Config) error {
	level := parseLevel(cfg.Log.Level)

	writer, err := buildWriter(cfg.Log.Output, cfg.Log.FilePath)
	if err != nil {
		return err
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	// 设置默认logger和全局Logger变量
	Logger = slog.New(handler)
	slog.SetDefault(Logger)

	return nil
}

// parseLevel 解析日志级别字符串
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

// buildWriter 根据配置构建日志输出目标
func buildWriter(output, filePath string) (io.Writer, error) {
	openLogFile := func() (*os.File, error) {
		if dir := filepath.Dir(filePath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		return os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	}

	switch strings.ToLower(output) {
	case "file":
		return openLogFile()
	case "both":
		file, err := openLogFile()
		if err != nil {
			return nil, err
		}
		return io.MultiWriter(os.Stdout, file), nil
	default:
		return os.Stdout, nil
	}
}

// Debug 记录调试级别的日志
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info 记录信息级别的日志
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn 记录警告级别的日志
func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Error 记录错误级别的日志
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}
