package hostlog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type bufCloser struct{ *bytes.Buffer }

func (bufCloser) Close() error { return nil }

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(bufCloser{&buf})
	l.SetLevel(WARN)
	l.Info("should not appear")
	require.Empty(t, buf.String())
	l.Warn("should appear")
	require.Contains(t, buf.String(), "should appear")
}

func TestStructuredFieldsPresent(t *testing.T) {
	var buf bytes.Buffer
	l := New(bufCloser{&buf})
	l.Error("disk open failed", KV("path", "/dev/sda"), KVErr(errTest{}))
	out := buf.String()
	require.True(t, strings.Contains(out, "path") || strings.Contains(out, "/dev/sda"))
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
