package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestJobEntryCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.WithField("job", "odds-regular").WithField("races", 12).Info("poll done")

	line := buf.String()
	for _, want := range []string{"job=odds-regular", "races=12", `msg="poll done"`, "level=info", "time="} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestConfigureIgnoresUnknownLevel(t *testing.T) {
	before := std.GetLevel()
	Configure("chatty", "")
	if std.GetLevel() != before {
		t.Fatalf("level changed on invalid input")
	}
}
