package slot

import (
	"errors"
	"testing"
	"time"
)

func kolkataConfig(t *testing.T) Config {
	t.Helper()
	loc := time.FixedZone("IST", 5*3600+30*60)
	return Config{Location: loc, StartHour: 8, EndHour: 1, SlotCount: 30}
}

func at(loc *time.Location, y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func TestResolveKolkataWindow(t *testing.T) {
	cfg := kolkataConfig(t)

	res, err := Resolve(at(cfg.Location, 2026, 1, 31, 8, 5), cfg)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res.Slot != 0 || res.Date != "2026-01-31" {
		t.Fatalf("08:05 должен дать слот 0 за 2026-01-31, получили %+v", res)
	}

	res, err = Resolve(at(cfg.Location, 2026, 2, 1, 0, 50), cfg)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res.Slot != 29 {
		t.Fatalf("00:50 должен дать слот 29, получили %d", res.Slot)
	}
	if res.Date != "2026-01-31" {
		t.Fatalf("ночной момент относится к дате начала окна, получили %s", res.Date)
	}
}

func TestResolveUsesLocationNotInstantZone(t *testing.T) {
	cfg := kolkataConfig(t)
	// 02:35 UTC == 08:05 IST
	res, err := Resolve(time.Date(2026, 1, 31, 2, 35, 0, 0, time.UTC), cfg)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res.Slot != 0 || res.Date != "2026-01-31" {
		t.Fatalf("ожидали слот 0 за 2026-01-31, получили %+v", res)
	}
}

func TestResolveWindowEdgesInclusive(t *testing.T) {
	cfg := kolkataConfig(t)
	start, err := Resolve(at(cfg.Location, 2026, 1, 31, 8, 0), cfg)
	if err != nil || start.Slot != 0 {
		t.Fatalf("начало окна должно входить в слот 0: %+v, %v", start, err)
	}
	end, err := Resolve(at(cfg.Location, 2026, 2, 1, 1, 0), cfg)
	if err != nil || end.Slot != 29 {
		t.Fatalf("конец окна должен входить в последний слот: %+v, %v", end, err)
	}
}

func TestResolveOutOfWindow(t *testing.T) {
	cfg := kolkataConfig(t)
	for _, hm := range [][2]int{{1, 1}, {3, 0}, {7, 59}} {
		_, err := Resolve(at(cfg.Location, 2026, 1, 31, hm[0], hm[1]), cfg)
		if !errors.Is(err, ErrOutOfWindow) {
			t.Fatalf("%02d:%02d должен быть вне окна, получили %v", hm[0], hm[1], err)
		}
	}

	plain := Config{Location: time.UTC, StartHour: 9, EndHour: 17, SlotCount: 4}
	for _, hm := range [][2]int{{8, 59}, {17, 1}, {23, 0}} {
		_, err := Resolve(at(time.UTC, 2026, 1, 31, hm[0], hm[1]), plain)
		if !errors.Is(err, ErrOutOfWindow) {
			t.Fatalf("%02d:%02d должен быть вне окна 9-17, получили %v", hm[0], hm[1], err)
		}
	}
}

func TestResolveSlotStability(t *testing.T) {
	cfg := kolkataConfig(t)
	base := at(cfg.Location, 2026, 1, 31, 8, 0)
	width := cfg.SlotMinutes()
	for slot := 0; slot < cfg.SlotCount; slot++ {
		first := base.Add(time.Duration(slot*width) * time.Minute)
		want, err := Resolve(first, cfg)
		if err != nil {
			t.Fatalf("слот %d: %v", slot, err)
		}
		if want.Slot != slot {
			t.Fatalf("начало слота %d дало %d", slot, want.Slot)
		}
		for offset := 1; offset < width; offset++ {
			got, err := Resolve(first.Add(time.Duration(offset)*time.Minute+17*time.Second), cfg)
			if err != nil {
				t.Fatalf("слот %d, смещение %d: %v", slot, offset, err)
			}
			if got.Slot != want.Slot || got.Date != want.Date {
				t.Fatalf("слот нестабилен: %+v против %+v", got, want)
			}
		}
	}
}

func TestResolveLastSlotTakesRemainder(t *testing.T) {
	cfg := Config{Location: time.UTC, StartHour: 9, EndHour: 10, SlotCount: 7}
	// 60 / 7 = 8 минут на слот, последний слот длится 12 минут.
	res, err := Resolve(at(time.UTC, 2026, 3, 1, 9, 59), cfg)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res.Slot != 6 {
		t.Fatalf("ожидали последний слот, получили %d", res.Slot)
	}
}

func TestResolveInvalidWindow(t *testing.T) {
	cases := []Config{
		{StartHour: 8, EndHour: 8, SlotCount: 3},
		{StartHour: 8, EndHour: 9, SlotCount: 0},
		{StartHour: 8, EndHour: 9, SlotCount: 61},
		{StartHour: -1, EndHour: 9, SlotCount: 1},
		{StartHour: 8, EndHour: 24, SlotCount: 1},
	}
	for _, cfg := range cases {
		if _, err := Resolve(time.Now(), cfg); !errors.Is(err, ErrInvalidWindow) {
			t.Fatalf("конфиг %+v должен быть отклонён, получили %v", cfg, err)
		}
	}
}
