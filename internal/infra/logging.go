package infra

import (
	"io"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the standard logger for a binary: JSON lines on
// out at the given level. An unknown level falls back to info.
func SetupLogging(out io.Writer, level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithError(err).WithField("level", level).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}
