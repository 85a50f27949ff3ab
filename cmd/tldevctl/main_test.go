package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aryainguz/tldev-backend/internal/usecase/slot"
)

func TestSlotCommand(t *testing.T) {
	t.Setenv("PUSH_TZ", "Asia/Kolkata")
	t.Setenv("PUSH_WINDOW_START_HOUR", "8")
	t.Setenv("PUSH_WINDOW_END_HOUR", "1")
	t.Setenv("PUSH_SLOT_COUNT", "30")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"slot", "--at", "2026-01-31T08:05:00+05:30"})
	require.NoError(t, root.Execute())

	var got slotOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.True(t, got.InWindow)
	require.Equal(t, 0, got.Result.Slot)
	require.Equal(t, "2026-01-31", got.Result.Date)
}

func TestPrintSlotOutOfWindow(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	var out bytes.Buffer
	cfg := slot.Config{Location: loc, StartHour: 8, EndHour: 1, SlotCount: 30}
	require.NoError(t, printSlot(&out, time.Date(2026, 1, 31, 3, 0, 0, 0, loc), cfg))

	var got slotOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.False(t, got.InWindow)
	require.Nil(t, got.Result)
}
