package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOption 日志初始化参数
type LogOption struct {
	Format   string // "console" 或 "json"
	LogDir   string // 日志目录，为空时只输出到 stderr
	Level    string // debug / info / warn / error
	Compress bool   // 是否压缩轮转后的旧日志
}

const (
	logFileName   = "markets.log"
	maxSizeMB     = 200
	maxBackups    = 10
	maxAgeDays    = 7
	defaultFormat = "console"
)

var (
	mu     sync.RWMutex
	sugar  *zap.SugaredLogger
	zapLog *zap.Logger
)

// 未调用 Init 前使用 stderr 控制台日志，保证测试与库代码可以安全打印
func init() {
	zapLog = zap.New(newCore(LogOption{Format: defaultFormat, Level: "info"}, zapcore.AddSync(os.Stderr)))
	sugar = zapLog.Sugar()
}

// Init 初始化全局日志：
// - 配置了 LogDir 时写入滚动文件（lumberjack），同时输出到 stderr
// - 否则只输出到 stderr
func Init(opt LogOption) error {
	writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stderr)}
	if opt.LogDir != "" {
		if err := os.MkdirAll(opt.LogDir, 0o755); err != nil {
			return err
		}
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(opt.LogDir, logFileName),
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   opt.Compress,
			LocalTime:  true,
		}))
	}

	l := zap.New(newCore(opt, zapcore.NewMultiWriteSyncer(writers...)),
		zap.AddCaller(), zap.AddCallerSkip(1))

	mu.Lock()
	zapLog = l
	sugar = l.Sugar()
	mu.Unlock()
	return nil
}

func newCore(opt LogOption, ws zapcore.WriteSyncer) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(opt.Format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, ws, parseLevel(opt.Level))
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { get().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { get().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }

// Sync 刷新缓冲，进程退出前调用
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = zapLog.Sync()
}
