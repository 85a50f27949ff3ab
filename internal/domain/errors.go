package domain

import "errors"

var (
	// ErrTipNotFound возвращается, когда совет не найден.
	ErrTipNotFound = errors.New("tip not found")
	// ErrUserNotFound возвращается, когда пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrJobNotFound возвращается, когда запись о запуске генерации не найдена.
	ErrJobNotFound = errors.New("job not found")
	// ErrDailyPushNotFound возвращается, когда для слота ещё нет записи в журнале.
	ErrDailyPushNotFound = errors.New("daily push not found")
	// ErrPushLeaseLost возвращается, когда слот перехвачен другой попыткой.
	ErrPushLeaseLost = errors.New("daily push lease lost")
	// ErrInvalidActionKind возвращается для неизвестного типа действия.
	ErrInvalidActionKind = errors.New("invalid action kind")
	// ErrInvalidSummary возвращается, когда сводка не соответствует своему варианту.
	ErrInvalidSummary = errors.New("invalid summary")
)
