// Package logging holds the process-wide loggers: the general one and the
// balancer's, which the tick and interrupt paths write to.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var (
	logger         = newLogger("msg", logrus.InfoLevel)
	balancerLogger = newLogger("balancer_msg", logrus.WarnLevel)
)

func newLogger(msgKey string, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(textFormatter(msgKey))
	l.SetLevel(level)
	return l
}

func textFormatter(msgKey string) logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp: true,
		FieldMap:      logrus.FieldMap{logrus.FieldKeyMsg: msgKey},
	}
}

func GetLogger() *logrus.Logger {
	return logger
}

// GetBalancerLogger returns the logger used on the tick and interrupt paths.
// It defaults to warn so per-tick decisions stay quiet unless asked for.
func GetBalancerLogger() *logrus.Logger {
	return balancerLogger
}

func SetLogLevel(level string) error {
	return setLevel(logger, level)
}

func SetBalancerLogLevel(level string) error {
	return setLevel(balancerLogger, level)
}

func setLevel(l *logrus.Logger, level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.SetLevel(parsed)
	return nil
}

// SetFormat switches both loggers to "text" or "json" output.
func SetFormat(format string) error {
	switch format {
	case "", "text":
		logger.SetFormatter(textFormatter("msg"))
		balancerLogger.SetFormatter(textFormatter("balancer_msg"))
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
		balancerLogger.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{logrus.FieldKeyMsg: "balancer_msg"},
		})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// Discard returns a logger that drops everything; tests hand it to components
// that insist on a non-nil logger.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
