package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("PUSH_TZ", "UTC")
	cfg, err := Parse()
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Push.WindowStart)
	require.Equal(t, 1, cfg.Push.WindowEnd)
	require.Equal(t, 30, cfg.Push.SlotCount)
	require.Equal(t, 10*time.Minute, cfg.Push.StaleAfter)
	require.Equal(t, 100, cfg.Expo.ChunkSize)
	require.Equal(t, "tip_enrichment", cfg.Queues.Enrich)
}

func TestSlotConfig(t *testing.T) {
	t.Setenv("PUSH_TZ", "UTC")
	t.Setenv("PUSH_WINDOW_START_HOUR", "20")
	t.Setenv("PUSH_WINDOW_END_HOUR", "2")
	t.Setenv("PUSH_SLOT_COUNT", "6")
	cfg, err := Parse()
	require.NoError(t, err)

	sc, err := cfg.SlotConfig()
	require.NoError(t, err)
	require.Equal(t, time.UTC, sc.Location)
	require.Equal(t, 20, sc.StartHour)
	require.Equal(t, 2, sc.EndHour)
	require.Equal(t, 6, sc.SlotCount)
}

func TestSlotConfigRejectsUnknownZone(t *testing.T) {
	t.Setenv("PUSH_TZ", "Mars/Olympus")
	cfg, err := Parse()
	require.NoError(t, err)
	_, err = cfg.SlotConfig()
	require.Error(t, err)
}

func TestSlotConfigRejectsEmptyWindow(t *testing.T) {
	t.Setenv("PUSH_TZ", "UTC")
	t.Setenv("PUSH_WINDOW_START_HOUR", "9")
	t.Setenv("PUSH_WINDOW_END_HOUR", "9")
	cfg, err := Parse()
	require.NoError(t, err)
	_, err = cfg.SlotConfig()
	require.Error(t, err)
}
