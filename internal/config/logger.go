package config

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Log *logrus.Logger

// InitLogger builds the process logger. Level falls back to info when empty or
// unknown; format "text" switches away from the default JSON formatter.
func InitLogger(level, format string) *logrus.Logger {
	return initLogger(os.Stdout, level, format)
}

func initLogger(out io.Writer, level, format string) *logrus.Logger {
	Log = logrus.New()

	if strings.EqualFold(format, "text") {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		Log.SetFormatter(&logrus.JSONFormatter{})
	}

	Log.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	return Log
}
