// Package validation содержит разбор пользовательского ввода диалогов.
package validation

import (
	"errors"
	"strconv"
	"strings"
)

// ErrBadFormat возвращается при неразборчивом вводе; диалог должен
// повторить запрос, не меняя состояние.
var ErrBadFormat = errors.New("bad input format")

// ParseUserChoice разбирает выбор сотрудника из кнопки вида
// "Иванов Иван (123456)" и возвращает идентификатор.
func ParseUserChoice(s string) (int64, error) {
	open := strings.LastIndex(s, "(")
	if open < 0 || !strings.HasSuffix(s, ")") {
		return 0, ErrBadFormat
	}

	id, err := strconv.ParseInt(s[open+1:len(s)-1], 10, 64)
	if err != nil {
		return 0, ErrBadFormat
	}

	return id, nil
}

// ParseDeduction разбирает строку списания вида "50; Ошибка в учёте"
// и возвращает величину и причину. Величина должна быть положительной,
// причина — непустой.
func ParseDeduction(s string) (int, string, error) {
	points, reason, ok := strings.Cut(s, ";")
	if !ok {
		return 0, "", ErrBadFormat
	}

	n, err := strconv.Atoi(strings.TrimSpace(points))
	if err != nil || n <= 0 {
		return 0, "", ErrBadFormat
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return 0, "", ErrBadFormat
	}

	return n, reason, nil
}

// ParsePoints разбирает целое количество баллов.
func ParsePoints(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, ErrBadFormat
	}
	return n, nil
}
