// Package logger 提供结构化日志功能
// 基于 zap 实现，支持同时输出到控制台和文件（文件自动轮转）
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志配置
type Options struct {
	Level    string // 日志级别：debug / info / warn / error
	FilePath string // 日志文件路径，为空时只输出到控制台
	Mode     string // 运行模式：debug 使用可读格式，release 使用 JSON
}

// New 创建 zap 日志实例
// 参数:
//   - opts: 日志配置
//
// 返回:
//   - *zap.Logger: 日志实例
func New(opts Options) *zap.Logger {
	level := parseLevel(opts.Level)

	// JSON 编码器用于文件输出和生产环境控制台输出
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)

	var consoleEncoder zapcore.Encoder
	if opts.Mode == "release" {
		consoleEncoder = jsonEncoder
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
	}

	// 配置了文件路径时追加文件输出，用 lumberjack 做轮转
	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    10, // 单文件最大 10MB
			MaxBackups: 5,
			MaxAge:     30, // 保留 30 天
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// NewNop 创建空日志实例，供测试使用
func NewNop() *zap.Logger {
	return zap.NewNop()
}

// parseLevel 解析日志级别字符串，未知值回落到 info
func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
