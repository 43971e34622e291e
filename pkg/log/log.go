package log

import (
	"io"
	"os"
	"path"
	"sync"

	global_config "conductor/app/config"
	"conductor/pkg/contextx"

	"github.com/sirupsen/logrus"
)

var (
	defaultLoggerName = "conductor"
	loggerMu          sync.Mutex
	logger            *logrus.Logger
	config            = global_config.Config.LOG
)

// Initialize rebuilds the shared logger from the current configuration.
func Initialize(format string, timeFormat string) {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	config = global_config.Config.LOG
	if format != "" {
		config.Format = format
	}
	if timeFormat != "" {
		config.TimestampFormat = timeFormat
	}
	logger = setupLogger()
}

// SetOutput redirects the shared logger, mostly for tests.
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger = setupLogger()
	}
	logger.SetOutput(w)
}

func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func openOutput() io.Writer {
	if config.DirPath == "" {
		return os.Stderr
	}
	exists, err := PathExists(config.DirPath)
	if err != nil {
		return os.Stderr
	}
	if !exists {
		if err := os.MkdirAll(config.DirPath, 0770); err != nil {
			return os.Stderr
		}
	}
	file, err := os.OpenFile(path.Join(config.DirPath, "conductor.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return os.Stderr
	}
	return file
}

func setupLogger() *logrus.Logger {
	formatter := NewLogFormatter()
	if config.TimestampFormat != "" {
		formatter.TimestampFormat = config.TimestampFormat
	}
	if config.Format != "" {
		formatter.OutputFormat = config.Format
	}

	l := logrus.New()
	l.SetOutput(openOutput())
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(formatter)
	return l
}

func GetLogger(ctx interface{}, name string) *logrus.Entry {
	loggerMu.Lock()
	if logger == nil {
		logger = setupLogger()
	}
	l := logger
	loggerMu.Unlock()

	workflow := "-"
	requestId := "-"
	switch t := ctx.(type) {
	case string:
		workflow = t
	case *contextx.Context:
		if t != nil {
			if w := t.GetWorkflow(); w != "" {
				workflow = w
			}
			if r := t.GetRequestID(); r != "" {
				requestId = r
			}
		}
	case map[string]interface{}:
		if w, ok := t["workflow"].(string); ok {
			workflow = w
		}
		if r, ok := t["requestId"].(string); ok {
			requestId = r
		}
	}
	return l.WithFields(logrus.Fields{
		"name":      name,
		"requestId": requestId,
		"workflow":  workflow,
	})
}

func Info(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Info(args...)
}

func Debug(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Debug(args...)
}

func Warn(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Warn(args...)
}

func Error(ctx interface{}, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Error(args...)
}

func Infof(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Infof(format, args...)
}

func Debugf(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Debugf(format, args...)
}

func Warnf(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Warnf(format, args...)
}

func Errorf(ctx interface{}, format string, args ...interface{}) {
	GetLogger(ctx, defaultLoggerName).Errorf(format, args...)
}
