package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/t-tomalak/logrus-easy-formatter"
)

var logger *customLogger

// nolint:gochecknoinits
func init() {
	logger = newLogger(os.Stderr)
}

type customLogger struct {
	*logrus.Logger
}

func newLogger(out io.Writer) *customLogger {
	l := &logrus.Logger{
		Out:   out,
		Hooks: make(logrus.LevelHooks),
		Level: logrus.InfoLevel,
		Formatter: &easy.Formatter{
			TimestampFormat: "01-02 15:04:05.000",
			LogFormat:       "[%lvl%]   [%time%]   -   %msg%\r\n",
		},
	}
	return &customLogger{l}
}

// SetOutput redirects all log output, mainly for tests.
func SetOutput(out io.Writer) {
	logger.SetOutput(out)
}

// SetLevel
// Set log level:
// DebugLevel = 0
// InfoLevel = 1
// WarnLevel = 2
// ErrorLevel = 3
func SetLevel(lvl int) {
	switch lvl {
	case 0:
		setLevel(logrus.DebugLevel)
	case 2:
		setLevel(logrus.WarnLevel)
	case 3:
		setLevel(logrus.ErrorLevel)
	default:
		setLevel(logrus.InfoLevel)
	}
}

// SetLevelName accepts the level names used in configuration files
// ("debug", "info", "warn", "error"); unknown names fall back to info.
func SetLevelName(name string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(name))
	if err != nil || lvl > logrus.DebugLevel || lvl < logrus.ErrorLevel {
		lvl = logrus.InfoLevel
	}
	setLevel(lvl)
}

func setLevel(lvl logrus.Level) {
	logger.Level = lvl
	Infof("log level set to %s.", strings.ToUpper(lvl.String()))
}

func IsDebug() bool {
	return logger.IsLevelEnabled(logrus.DebugLevel)
}

func Debug(content interface{}) {
	logger.Debug(content)
}

func Debugf(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

func Info(content interface{}) {
	logger.Info(content)
}

func Infof(format string, args ...interface{}) {
	logger.Info(fmt.Sprintf(format, args...))
}

func Warn(content interface{}) {
	logger.Warn(content)
}

func Warnf(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...))
}

func Error(content interface{}) {
	logger.Error(content)
}

func Errorf(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...))
}

func Fatal(content interface{}) {
	logger.Fatal(content)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatal(fmt.Sprintf(format, args...))
}
