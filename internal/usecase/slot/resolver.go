// Package slot содержит чистые функции расписания рассылок: вычисление слота
// по времени и детерминированный выбор кандидата.
package slot

import (
	"errors"
	"fmt"
	"time"
)

const (
	minutesPerDay = 24 * 60
	// DateLayout задаёт формат логической даты слота.
	DateLayout = "2006-01-02"
)

var (
	// ErrOutOfWindow возвращается, если момент лежит вне окна рассылки. Это пропуск, а не сбой.
	ErrOutOfWindow = errors.New("slot: instant is out of window")
	// ErrInvalidWindow возвращается для некорректной конфигурации окна.
	ErrInvalidWindow = errors.New("slot: invalid window")
)

// Config задаёт суточное окно рассылки в часовом поясе Location.
// Если EndHour меньше StartHour, окно переходит через полночь.
type Config struct {
	Location  *time.Location
	StartHour int
	EndHour   int
	SlotCount int
}

// Result описывает вычисленный слот.
type Result struct {
	Slot int    `json:"slot"`
	Date string `json:"date"`
	// Elapsed хранит минуты от начала окна.
	Elapsed     int `json:"elapsed_minutes"`
	SlotMinutes int `json:"slot_minutes"`
}

// Validate проверяет конфигурацию окна.
func (c Config) Validate() error {
	if c.StartHour < 0 || c.StartHour > 23 || c.EndHour < 0 || c.EndHour > 23 {
		return fmt.Errorf("%w: hours must be within 0..23", ErrInvalidWindow)
	}
	if c.StartHour == c.EndHour {
		return fmt.Errorf("%w: start equals end", ErrInvalidWindow)
	}
	if c.SlotCount <= 0 {
		return fmt.Errorf("%w: slot count must be positive", ErrInvalidWindow)
	}
	if c.WindowMinutes()/c.SlotCount == 0 {
		return fmt.Errorf("%w: %d slots do not fit into %d minutes", ErrInvalidWindow, c.SlotCount, c.WindowMinutes())
	}
	return nil
}

// Wraps сообщает, переходит ли окно через полночь.
func (c Config) Wraps() bool {
	return c.EndHour < c.StartHour
}

// WindowMinutes возвращает длину окна в минутах.
func (c Config) WindowMinutes() int {
	start, end := c.StartHour*60, c.EndHour*60
	if c.Wraps() {
		return end + minutesPerDay - start
	}
	return end - start
}

// SlotMinutes возвращает длительность слота. Остаток деления достаётся последнему слоту.
func (c Config) SlotMinutes() int {
	if c.SlotCount <= 0 {
		return 0
	}
	return c.WindowMinutes() / c.SlotCount
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Resolve вычисляет слот и логическую дату для момента now.
// Границы окна включительные, точность до минуты. Ночная часть окна,
// переходящего через полночь, относится к дате начала окна.
func Resolve(now time.Time, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	local := now.In(cfg.location())
	minute := local.Hour()*60 + local.Minute()
	start, end := cfg.StartHour*60, cfg.EndHour*60

	var elapsed int
	day := local
	switch {
	case !cfg.Wraps():
		if minute < start || minute > end {
			return Result{}, ErrOutOfWindow
		}
		elapsed = minute - start
	case minute >= start:
		elapsed = minute - start
	case minute <= end:
		elapsed = minute + minutesPerDay - start
		day = local.AddDate(0, 0, -1)
	default:
		return Result{}, ErrOutOfWindow
	}

	duration := cfg.SlotMinutes()
	idx := elapsed / duration
	if idx > cfg.SlotCount-1 {
		idx = cfg.SlotCount - 1
	}
	return Result{
		Slot:        idx,
		Date:        day.Format(DateLayout),
		Elapsed:     elapsed,
		SlotMinutes: duration,
	}, nil
}

// ParseDate проверяет логическую дату слота.
func ParseDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("slot: invalid date %q: %w", date, err)
	}
	return nil
}
