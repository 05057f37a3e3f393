package logging

import (
	"context"
	"io"
	"os"
	"time"

	appctx "github.com/brave-intl/acquiring-go/libs/context"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

var (
	// we are not promising to get every log message in the log
	// anymore, when it comes down to it, we would rather the service
	// runs than fails on log writing contention.  This will let us
	// see how many logs we are dropping
	droppedLogTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dropped_log_events_total",
			Help: "A counter for the number of dropped log messages",
		},
	)
	Writer io.WriteCloser
)

func NopCloser(w io.Writer) io.WriteCloser {
	return nopCloser{w}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func init() {
	prometheus.MustRegister(droppedLogTotal)
}

// SetupLoggerWithLevel - helper to setup a logger and associate with context with a given log level
func SetupLoggerWithLevel(ctx context.Context, level zerolog.Level) (context.Context, *zerolog.Logger) {
	// setup context with log level passed in
	ctx = context.WithValue(ctx, appctx.LogLevelCTXKey, level)
	// call SetupLogger
	return SetupLogger(ctx)
}

// SetupLogger - helper to setup a logger and associate with context
func SetupLogger(ctx context.Context) (context.Context, *zerolog.Logger) {
	writer, ok := ctx.Value(appctx.LogWriterCTXKey).(io.Writer)

	env, err := appctx.GetStringFromContext(ctx, appctx.EnvironmentCTXKey)
	if err != nil {
		// if not in context, default to local
		env = "local"
	}

	// defaults to info level
	level, _ := appctx.GetLogLevelFromContext(ctx, appctx.LogLevelCTXKey)

	if ok {
		Writer = NopCloser(writer)
	} else if env != "local" {
		// this log writer uses a ring buffer and drops messages that cannot be processed
		// in a timely manner
		Writer = diode.NewWriter(os.Stdout, 1000, time.Duration(20*time.Millisecond), func(missed int) {
			// add to our counter of lost log messages
			droppedLogTotal.Add(float64(missed))
		})
	} else {
		Writer = NopCloser(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	// always print out timestamp
	l := zerolog.New(Writer).With().Timestamp().Logger()

	var (
		debug bool
	)

	// set the log level
	l = l.Level(level)

	// debug override
	if debug, ok = ctx.Value(appctx.DebugLoggingCTXKey).(bool); ok && debug {
		l = l.Level(zerolog.DebugLevel)
	}

	return l.WithContext(ctx), &l
}

func UpdateContext(ctx context.Context, logger zerolog.Logger) (context.Context, *zerolog.Logger) {
	ctx = logger.WithContext(ctx)
	return ctx, &logger
}

// AddPaymentIDToContext adds payment id to the context logger
func AddPaymentIDToContext(ctx context.Context, paymentID string) {
	l := zerolog.Ctx(ctx)
	if e := l.Debug(); e.Enabled() {
		l.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("paymentID", paymentID)
		})
	}
}

// Logger - get a module tagged sub-logger
func Logger(ctx context.Context, prefix string) *zerolog.Logger {
	l, err := appctx.GetLogger(ctx)
	if err != nil {
		// create a new logger
		_, l = SetupLogger(ctx)
	}
	sl := l.With().Str("module", prefix).Logger()
	return &sl
}

// FromContext - retrieves logger from context or gets a new logger if not present
func FromContext(ctx context.Context) *zerolog.Logger {
	logger, err := appctx.GetLogger(ctx)
	if err != nil {
		_, logger = SetupLogger(ctx)
	}
	return logger
}

// LogAndError - helper to log and error
func LogAndError(logger *zerolog.Logger, msg string, err error) error {
	if logger != nil {
		logger.Error().Err(err).Msg(msg)
	}
	return err
}
