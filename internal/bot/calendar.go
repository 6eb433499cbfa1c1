package bot

import (
	"fmt"
	"time"
)

var monthNames = [...]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

// calendarKeyboard строит инлайн-календарь на месяц. Дни раньше minDate
// выводятся пустыми кнопками, сетка начинается с понедельника.
func calendarKeyboard(year int, month time.Month, minDate time.Time) [][]Button {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)
	min := time.Date(minDate.Year(), minDate.Month(), minDate.Day(), 0, 0, 0, 0, time.UTC)

	rows := [][]Button{
		{
			{Label: "◀️", Data: fmt.Sprintf("nav_%04d-%02d", prev.Year(), prev.Month())},
			{Label: fmt.Sprintf("%s %d", monthNames[month-1], year), Data: "ignore"},
			{Label: "▶️", Data: fmt.Sprintf("nav_%04d-%02d", next.Year(), next.Month())},
		},
		{
			{Label: "Пн", Data: "ignore"}, {Label: "Вт", Data: "ignore"},
			{Label: "Ср", Data: "ignore"}, {Label: "Чт", Data: "ignore"},
			{Label: "Пт", Data: "ignore"}, {Label: "Сб", Data: "ignore"},
			{Label: "Вс", Data: "ignore"},
		},
	}

	daysInMonth := next.AddDate(0, 0, -1).Day()
	offset := (int(first.Weekday()) + 6) % 7

	row := make([]Button, 0, 7)
	for i := 0; i < offset; i++ {
		row = append(row, Button{Label: " ", Data: "ignore"})
	}

	for day := 1; day <= daysInMonth; day++ {
		date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if date.Before(min) {
			row = append(row, Button{Label: " ", Data: "ignore"})
		} else {
			row = append(row, Button{
				Label: fmt.Sprintf("%d", day),
				Data:  fmt.Sprintf("date_%04d-%02d-%02d", year, month, day),
			})
		}
		if len(row) == 7 {
			rows = append(rows, row)
			row = make([]Button, 0, 7)
		}
	}

	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, Button{Label: " ", Data: "ignore"})
		}
		rows = append(rows, row)
	}

	rows = append(rows, []Button{{Label: "❌ Отмена", Data: "cancel_calendar"}})
	return rows
}
