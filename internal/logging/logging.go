package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"healthdeck/internal/config"
)

// Setup configures the global zerolog logger from cfg and returns the writer in use.
func Setup(cfg config.LogConfig) io.Writer {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = zerolog.MultiLevelWriter(out, file)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return out
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// SchedulerLogger adapts zerolog to the gocron Logger interface.
type SchedulerLogger struct {
	logger zerolog.Logger
}

// NewSchedulerLogger tags every message with the component name.
func NewSchedulerLogger(component string) SchedulerLogger {
	return SchedulerLogger{logger: log.With().Str("component", component).Logger()}
}

func (l SchedulerLogger) Debug(msg string, args ...any) { l.logger.Debug().Fields(args).Msg(msg) }
func (l SchedulerLogger) Info(msg string, args ...any)  { l.logger.Info().Fields(args).Msg(msg) }
func (l SchedulerLogger) Warn(msg string, args ...any)  { l.logger.Warn().Fields(args).Msg(msg) }
func (l SchedulerLogger) Error(msg string, args ...any) { l.logger.Error().Fields(args).Msg(msg) }
