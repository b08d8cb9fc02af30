package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

type testWriter struct {
	tb testing.TB
}

// NewTestAppender returns a logger appender that logs to the underlying `testing.TB`
// object. Writing logs with `tb.Log` correctly associates the log line with a Golang "Test*"
// function, which matters once tests call `t.Parallel()`.
func NewTestAppender(tb testing.TB) Appender {
	return NewWriterAppender(zapcore.AddSync(&testWriter{tb}))
}

func (tw *testWriter) Write(p []byte) (int, error) {
	tw.tb.Helper()
	tw.tb.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
