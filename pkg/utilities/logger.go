package utilities

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the zap logger. File, when set, receives a copy of the
// JSON log rotated every Rotate and pruned after MaxAge.
type Config struct {
	Level  string        `env:"LOG_LEVEL"`
	Dev    bool          `env:"LOG_DEV"`
	File   string        `env:"LOG_FILE"`
	MaxAge time.Duration `env:"LOG_MAX_AGE" envDefault:"168h"`
	Rotate time.Duration `env:"LOG_ROTATION" envDefault:"24h"`
}

// ConfigFromEnv reads minimal config from env vars.
func ConfigFromEnv() Config {
	var cfg Config
	_ = env.Parse(&cfg)
	if cfg.Level == "" {
		if cfg.Dev {
			cfg.Level = "debug"
		} else {
			cfg.Level = "info"
		}
	}
	return cfg
}

func levelFromString(l string) zapcore.Level {
	switch l {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init initializes and returns a *zap.Logger
func Init(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level)
	if cfg.Dev {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	sink := zapcore.AddSync(os.Stdout)
	if cfg.File != "" {
		rl, err := rotatelogs.New(
			cfg.File+".%Y%m%d",
			rotatelogs.WithLinkName(cfg.File),
			rotatelogs.WithMaxAge(cfg.MaxAge),
			rotatelogs.WithRotationTime(cfg.Rotate),
		)
		if err != nil {
			return nil, err
		}
		sink = zapcore.NewMultiWriteSyncer(sink, zapcore.AddSync(rl))
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, lvl)
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	return zap.New(core, opts...), nil
}
