package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrNotFound возвращается, если запись или сериал отсутствуют.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRating возвращается при оценке вне диапазона 0–10.
	ErrInvalidRating = errors.New("оценка должна быть от 0 до 10")
	// ErrCacheMiss возвращается кэшем при отсутствии ключа.
	ErrCacheMiss = errors.New("cache miss")
	// ErrSnapshotNotFound возвращается, если снимок ленты истёк или не существовал.
	ErrSnapshotNotFound = errors.New("снимок ленты не найден")
)

const (
	MinRating = 0.0
	MaxRating = 10.0
)

// ValidateRating проверяет оценку и округляет её до десятых.
func ValidateRating(r *float64) (*float64, error) {
	if r == nil {
		return nil, nil
	}
	v := *r
	if math.IsNaN(v) || v < MinRating || v > MaxRating {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRating, v)
	}
	rounded := RoundRating(v)
	return &rounded, nil
}

// ParseRating разбирает пользовательский ввод вида "8.5" или "8,5".
func ParseRating(raw string) (*float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(trimmed, ",", "."), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRating, raw)
	}
	return ValidateRating(&v)
}

// RoundRating округляет значение до одного знака после запятой.
func RoundRating(v float64) float64 {
	return math.Round(v*10) / 10
}

// Average считает среднее арифметическое, для пустого списка возвращает 0.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return RoundRating(sum / float64(len(values)))
}
