package infra

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// This can be used as the destination for a logger and it'll
// map them into calls to testing.T.Log, so that you only see
// the logging for failed tests.
type testLoggerAdapter struct {
	t testing.TB
}

func (a *testLoggerAdapter) Write(d []byte) (int, error) {
	n := len(d)
	if n > 0 && d[n-1] == '\n' {
		d = d[:n-1]
	}
	a.t.Log(string(d))
	return n, nil
}

func NewTestLogger(t testing.TB) *logrus.Logger {
	logger := logrus.New()
	logger.Out = &testLoggerAdapter{t: t}
	logger.Level = logrus.DebugLevel
	return logger
}
