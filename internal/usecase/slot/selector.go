package slot

import (
	"errors"
	"fmt"
	"math"
)

// ErrEmptyCandidateSet возвращается, если выбирать не из чего. Это пропуск, а не сбой.
var ErrEmptyCandidateSet = errors.New("slot: empty candidate set")

// Seed строит ключ выбора для слота, например "2026-01-31-3".
func Seed(date string, slot int) string {
	return fmt.Sprintf("%s-%d", date, slot)
}

// Hash считает полиномиальный хеш строки (основание 31, 32 бита).
func Hash(seed string) uint32 {
	var h uint32
	for i := 0; i < len(seed); i++ {
		h = h*31 + uint32(seed[i])
	}
	return h
}

// Unit переводит хеш в число из [0, 1) через splitmix64.
func Unit(h uint32) float64 {
	z := uint64(h) + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return float64(z>>11) * (1.0 / (1 << 53))
}

// Pick возвращает индекс из [0, n-1], который зависит только от seed и n.
func Pick(seed string, n int) (int, error) {
	if n <= 0 {
		return 0, ErrEmptyCandidateSet
	}
	idx := int(math.Floor(Unit(Hash(seed)) * float64(n)))
	if idx >= n {
		idx = n - 1
	}
	return idx, nil
}

// Select выбирает элемент списка по ключу. Одинаковые ключ и список дают одинаковый выбор.
func Select[T any](seed string, candidates []T) (T, int, error) {
	var zero T
	idx, err := Pick(seed, len(candidates))
	if err != nil {
		return zero, 0, err
	}
	return candidates[idx], idx, nil
}
