// Package validation содержит функции валидации пользовательского ввода.
package validation

import (
	"errors"
	"strconv"
	"strings"
)

// Диапазон покупки звёзд, принятый магазином.
const (
	MinStars = 50
	MaxStars = 1_000_000
)

var (
	// ErrNotANumber возвращается, если ввод не является числом.
	ErrNotANumber = errors.New("input is not a number")
	// ErrOutOfRange возвращается, если число вне допустимого диапазона.
	ErrOutOfRange = errors.New("input is out of range")
	// ErrEmptyRecipient возвращается, если после нормализации username пуст.
	ErrEmptyRecipient = errors.New("recipient is empty")
)

// ParseStarsAmount разбирает количество звёзд: целое число от 50 до 1 000 000.
func ParseStarsAmount(text string) (int, error) {
	stars, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, ErrNotANumber
	}
	if stars < MinStars || stars > MaxStars {
		return 0, ErrOutOfRange
	}
	return stars, nil
}

// ParseExchangeAmount разбирает сумму обмена в рублях, не меньше minRUB.
func ParseExchangeAmount(text string, minRUB float64) (float64, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(text, ",", ".")), 64)
	if err != nil {
		return 0, ErrNotANumber
	}
	if amount < minRUB {
		return 0, ErrOutOfRange
	}
	return amount, nil
}

// NormalizeRecipient убирает ведущий @ и пробелы из username получателя.
func NormalizeRecipient(text string) (string, error) {
	recipient := strings.TrimSpace(text)
	recipient = strings.TrimPrefix(recipient, "@")
	if recipient == "" {
		return "", ErrEmptyRecipient
	}
	return recipient, nil
}
