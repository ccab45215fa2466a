package grade_export

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog"
)

/******************************************************************************/

type Metrics interface {
	Incr(s string, tags []string, i int) LayerError
	Timing(s string, timed time.Duration, tags []string, i int) LayerError
	Gauge(s string, f float64, tags []string, i int) LayerError
}

type Logger interface {
	Error(message string, args ...any)
	Info(message string, args ...any)
	Debug(message string, args ...any)
	Warn(message string, args ...any)
	Errorf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	With(name string, value string) Logger
}

/******************************************************************************/

type StatsdMetrics struct {
	client statsd.ClientInterface
}

func (sm StatsdMetrics) Incr(name string, tags []string, rate int) LayerError {
	return Err(sm.client.Incr(name, tags, float64(rate)), LayerErrorInternal)
}

func (sm StatsdMetrics) Timing(name string, value time.Duration, tags []string, rate int) LayerError {
	return Err(sm.client.Timing(name, value, tags, float64(rate)), LayerErrorInternal)
}

func (sm StatsdMetrics) Gauge(name string, value float64, tags []string, rate int) LayerError {
	return Err(sm.client.Gauge(name, value, tags, float64(rate)), LayerErrorInternal)
}

func NewMetrics(conf *Config) (Metrics, error) {
	var client statsd.ClientInterface
	if conf.LayerServiceConfig.StatsdEnabled {
		c, err := statsd.New(conf.LayerServiceConfig.StatsdAgentAddress,
			statsd.WithNamespace(conf.LayerServiceConfig.ServiceName),
			statsd.WithTags([]string{"application:" + conf.LayerServiceConfig.ServiceName}))
		if err != nil {
			return nil, err
		}

		client = c
	} else {
		client = &statsd.NoOpClient{}
	}

	return &StatsdMetrics{client: client}, nil
}

// NoOpMetrics returns metrics that discard everything, for tests and tools
func NoOpMetrics() Metrics {
	return &StatsdMetrics{client: &statsd.NoOpClient{}}
}

type logger struct {
	log zerolog.Logger
}

func (l *logger) With(name string, value string) Logger {
	return &logger{l.log.With().Str(name, value).Logger()}
}

func (l *logger) Warn(message string, args ...any) {
	l.log.Warn().Fields(args).Msg(message)
}

func (l *logger) Error(message string, args ...any) {
	l.log.Error().Fields(args).Msg(message)
}

func (l *logger) Info(message string, args ...any) {
	l.log.Info().Fields(args).Msg(message)
}

func (l *logger) Debug(message string, args ...any) {
	l.log.Debug().Fields(args).Msg(message)
}

func (l *logger) Warnf(format string, args ...any) {
	l.log.Warn().Msg(fmt.Sprintf(format, args...))
}

func (l *logger) Errorf(format string, args ...any) {
	l.log.Error().Msg(fmt.Sprintf(format, args...))
}

func (l *logger) Infof(format string, args ...any) {
	l.log.Info().Msg(fmt.Sprintf(format, args...))
}

func (l *logger) Debugf(format string, args ...any) {
	l.log.Debug().Msg(fmt.Sprintf(format, args...))
}

func NewLogger(serviceName string, format string, level string) Logger {
	return newLogger(os.Stdout, serviceName, format, level)
}

func newLogger(out io.Writer, serviceName string, format string, level string) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if format == "text" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	log := zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("go.version", runtime.Version()).
		Str("service", serviceName).
		Logger()
	return &logger{log}
}
