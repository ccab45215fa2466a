package grade_export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerFormattedMethods(t *testing.T) {
	buf := &bytes.Buffer{}
	l := &logger{log: zerolog.New(buf)}

	l.Debugf("debug %s", "msg")
	if got := buf.String(); !strings.Contains(got, "\"level\":\"debug\"") || !strings.Contains(got, "debug msg") {
		t.Fatalf("unexpected debugf output: %s", got)
	}
	buf.Reset()

	l.Infof("info %s", "msg")
	if got := buf.String(); !strings.Contains(got, "\"level\":\"info\"") || !strings.Contains(got, "info msg") {
		t.Fatalf("unexpected infof output: %s", got)
	}
	buf.Reset()

	l.Warnf("warn %s", "msg")
	if got := buf.String(); !strings.Contains(got, "\"level\":\"warn\"") || !strings.Contains(got, "warn msg") {
		t.Fatalf("unexpected warnf output: %s", got)
	}
	buf.Reset()

	l.Errorf("error %s", "msg")
	if got := buf.String(); !strings.Contains(got, "\"level\":\"error\"") || !strings.Contains(got, "error msg") {
		t.Fatalf("unexpected errorf output: %s", got)
	}
}

func TestLoggerKeyValueArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	l := newLogger(buf, "grades", "json", "info").With("export_id", "abc")

	l.Info("exported", "course", 7, "rows", 12)
	got := buf.String()
	for _, want := range []string{`"course":7`, `"rows":12`, `"export_id":"abc"`, `"service":"grades"`, `"message":"exported"`} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %s in %s", want, got)
		}
	}
	buf.Reset()

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug should be filtered at info level, got %s", buf.String())
	}
}
