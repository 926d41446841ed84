// Public domain.

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	for _, c := range []struct {
		raw  string
		want zerolog.Level
		ok   bool
	}{
		{"", zerolog.InfoLevel, false},
		{"DEBUG", zerolog.DebugLevel, true},
		{" warning ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	} {
		got, ok := parseLevel(c.raw)
		if got != c.want || ok != c.ok {
			t.Fatalf("%q: got %v %t", c.raw, got, ok)
		}
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	setRoot(newLogger(&buf, zerolog.InfoLevel, false, true))
	l := For("jointcal.Test")
	l.Info().Int("n", 3).Msg("hello")
	l.Debug().Msg("hidden")
	out := buf.String()
	if !strings.Contains(out, "jointcal.Test") || !strings.Contains(out, "hello") {
		t.Fatal(out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatal("debug message logged at info level")
	}
}
