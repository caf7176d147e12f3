package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// ZerologConfig describes the zerolog outputs.
type ZerologConfig struct {
	Level          string
	Console        io.Writer
	File           io.Writer
	GraylogEnabled bool
	GraylogAddress string
}

func zerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewZerolog builds the structured logger used by the scheduler and the
// storage and metrics managers. The returned closer releases the Graylog
// connection, if any.
func NewZerolog(cfg ZerologConfig) (zerolog.Logger, io.Closer, error) {
	var writers []io.Writer
	if cfg.Console != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        cfg.Console,
			TimeFormat: time.RFC3339,
		})
	}
	if cfg.File != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        cfg.File,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}

	var closer io.Closer = nopCloser{}
	if cfg.GraylogEnabled {
		gw, err := gelf.NewWriter(cfg.GraylogAddress)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("connect graylog %s: %w", cfg.GraylogAddress, err)
		}
		writers = append(writers, gw)
		closer = gw
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerologLevel(cfg.Level)).
		With().Timestamp().Str("service", ServiceName).Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
