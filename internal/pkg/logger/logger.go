// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger 是全局的 zerolog 实例，由 Init 初始化。
// 业务代码优先使用 Ctx(ctx)，只有在没有 context 的场景才直接使用包级方法。
var Logger zerolog.Logger

func init() {
	// 在 Init 被调用之前也要保证日志可用（例如 config 加载阶段）
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 初始化全局日志实例，注入服务名等公共字段。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lv != zerolog.NoLevel {
		level = lv
	}
	Logger = zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回 context 中携带的 logger；如果没有，则回退到全局实例。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return &Logger
	}
	return l
}

// WithContext 将全局 logger 注入到 context 中，供下游通过 Ctx 取出。
func WithContext(ctx context.Context) context.Context {
	return Logger.WithContext(ctx)
}

func Debug() *zerolog.Event { return Logger.Debug() }
func Info() *zerolog.Event  { return Logger.Info() }
func Warn() *zerolog.Event  { return Logger.Warn() }
func Error() *zerolog.Event { return Logger.Error() }
func Fatal() *zerolog.Event { return Logger.Fatal() }
