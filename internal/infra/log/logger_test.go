package log

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewLoggerTo(&buf, "prod"), "dispatch")
	logger.Info().Msg("dispatch: slot completed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("не удалось разобрать запись лога: %v", err)
	}
	if entry["component"] != "dispatch" {
		t.Fatalf("ожидали component=dispatch, получили %v", entry["component"])
	}
	if entry["service"] != "tldev" {
		t.Fatalf("ожидали service=tldev, получили %v", entry["service"])
	}
}

func TestDebugOnlyInDev(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, "prod").Debug().Msg("скрыто")
	if buf.Len() != 0 {
		t.Fatalf("debug не должен писаться вне dev: %s", buf.String())
	}
	NewLoggerTo(&buf, "dev").Debug().Msg("видно")
	if buf.Len() == 0 {
		t.Fatalf("debug должен писаться в dev")
	}
}
