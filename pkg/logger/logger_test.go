package logx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestInitWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, Config{Debug: false})
	log.Debug().Msg("hidden")
	log.Info().Str("thread_id", "t-1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line logged at info level: %s", out)
	}
	if !strings.Contains(out, `"thread_id":"t-1"`) || !strings.Contains(out, `"caller"`) {
		t.Fatalf("unexpected output: %s", out)
	}

	buf.Reset()
	InitWriter(&buf, Config{Debug: true})
	log.Debug().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug line missing: %s", buf.String())
	}
}
