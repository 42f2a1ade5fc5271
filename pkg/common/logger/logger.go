package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is usable from package load; Init applies the service formatter and
// level on top.
var Log = logrus.New()

func Init() {
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	Log.SetLevel(logLevel)
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

// WithSync tags an entry with the sync type so one run's lines can be
// filtered out of the service log.
func WithSync(syncType string) *logrus.Entry {
	return Log.WithField("sync_type", syncType)
}
