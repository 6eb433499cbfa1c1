package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/staffpoints/internal/model"
	"github.com/mmeshcher/staffpoints/internal/repository"
	"github.com/mmeshcher/staffpoints/internal/service"
)

func (m *Machine) handleButton(ctx context.Context, s *session, ev Event) []Response {
	data := ev.Text

	switch {
	case data == "ignore":
		return nil

	case strings.HasPrefix(data, "role_"):
		return m.showEmployeesByRole(ctx, s, ev.From, model.Role(strings.TrimPrefix(data, "role_")))

	case strings.HasPrefix(data, "delete_user_"):
		return m.deleteEmployee(ctx, s, ev.From, strings.TrimPrefix(data, "delete_user_"))

	case strings.HasPrefix(data, "approve_"), strings.HasPrefix(data, "reject_"):
		return m.decideRequest(ctx, s, ev.From, data)

	case data == "clear_queue":
		if !m.isStaff(ev.From) {
			return []Response{reply(ev.From, "⛔️ У вас нет доступа к этой функции.")}
		}
		if err := m.svc.ClearApproved(ctx); err != nil {
			return m.failToMenu(s, ev.From, err)
		}
		return []Response{reply(ev.From, "Очередь успешно очищена.")}

	case data == "back_to_menu":
		return m.toMenu(s, ev.From, "Вы вернулись в главное меню.")

	case strings.HasPrefix(data, "nav_"):
		return m.navigateCalendar(s, ev.From, strings.TrimPrefix(data, "nav_"))

	case strings.HasPrefix(data, "date_"):
		return m.selectDate(ctx, s, ev.From, strings.TrimPrefix(data, "date_"))

	case data == "cancel_calendar":
		return m.toMenu(s, ev.From, "Выбор даты отменен.")

	case data == "confirm_request":
		return m.confirmRequest(ctx, s, ev.From)

	case data == "cancel_request":
		return m.toMenu(s, ev.From, "❌ Заявка отменена.")

	default:
		return m.fallback(s, ev.From)
	}
}

func (m *Machine) showEmployeesByRole(ctx context.Context, s *session, chatID int64, role model.Role) []Response {
	users, err := m.svc.ListUsers(ctx)
	if err != nil {
		return m.failToMenu(s, chatID, err)
	}

	var b strings.Builder
	count := 0
	fmt.Fprintf(&b, "Сотрудники с ролью %s:\n\n", role)
	for _, u := range users {
		if u.Role != role {
			continue
		}
		fmt.Fprintf(&b, "%s — Баллы: %d\n", u.FullName, u.Points)
		count++
	}

	if count == 0 {
		return []Response{reply(chatID, fmt.Sprintf("Сотрудники с ролью %s не найдены.", role))}
	}
	return []Response{reply(chatID, b.String())}
}

func (m *Machine) showEmployeesForDeletion(ctx context.Context, s *session, chatID int64) []Response {
	users, err := m.svc.ListUsers(ctx)
	if err != nil {
		return m.failToMenu(s, chatID, err)
	}

	if len(users) == 0 {
		return []Response{reply(chatID, "Список сотрудников пуст.")}
	}

	inline := make([][]Button, 0, len(users))
	for _, u := range users {
		inline = append(inline, []Button{
			{Label: fmt.Sprintf("%s (%s)", u.FullName, u.Role), Data: "ignore"},
			{Label: "Удалить", Data: fmt.Sprintf("delete_user_%d", u.ID)},
		})
	}

	return []Response{{ChatID: chatID, Text: "Список сотрудников:", Inline: inline}}
}

func (m *Machine) deleteEmployee(ctx context.Context, s *session, chatID int64, rawID string) []Response {
	if !m.isStaff(chatID) {
		return []Response{reply(chatID, "⛔️ У вас нет прав для удаления сотрудников.")}
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return m.fallback(s, chatID)
	}

	if err := m.svc.DeleteUser(ctx, id); err != nil {
		return m.failToMenu(s, chatID, err)
	}

	return []Response{reply(chatID, fmt.Sprintf("Сотрудник с ID %d удалён.", id))}
}

func (m *Machine) decideRequest(ctx context.Context, s *session, chatID int64, data string) []Response {
	action, rawID, ok := strings.Cut(data, "_")
	if !ok {
		return m.fallback(s, chatID)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return m.fallback(s, chatID)
	}

	req, err := m.svc.Decide(ctx, chatID, id, action == "approve")
	switch {
	case errors.Is(err, service.ErrNotAllowed):
		return []Response{reply(chatID, "⛔️ У вас нет доступа к этой функции.")}
	case errors.Is(err, repository.ErrRequestNotFound):
		return []Response{reply(chatID, "❌ Заявка не найдена.")}
	case errors.Is(err, repository.ErrAlreadyDecided):
		return []Response{reply(chatID, fmt.Sprintf("⚠️ Заявка уже была обработана (%s).", req.Status))}
	case errors.Is(err, repository.ErrDateUnavailable):
		return []Response{reply(chatID, "⚠️ Лимит на эту дату исчерпан, одобрить заявку нельзя.")}
	case err != nil:
		return m.failToMenu(s, chatID, err)
	}

	if req.Status == model.RequestStatusApproved {
		return []Response{reply(chatID, "✅ Заявка одобрена.")}
	}
	return []Response{reply(chatID, "❌ Заявка отклонена.")}
}

func (m *Machine) showApprovedQueue(ctx context.Context, s *session, chatID int64) []Response {
	requests, err := m.svc.ApprovedQueue(ctx, 10)
	if err != nil {
		return m.failToMenu(s, chatID, err)
	}

	if len(requests) == 0 {
		return []Response{reply(chatID, "Очередь пуста.")}
	}

	var b strings.Builder
	b.WriteString("✅ Одобренные заявки\n\n")
	for _, r := range requests {
		fmt.Fprintf(&b, " %s — %s (%s)\n", r.FullName, r.Description, r.CreatedAt.Format("2006-01-02 15:04"))
	}

	return []Response{{
		ChatID: chatID,
		Text:   b.String(),
		Inline: [][]Button{
			{{Label: "Очистить очередь", Data: "clear_queue"}},
			{{Label: "Назад", Data: "back_to_menu"}},
		},
	}}
}

func (m *Machine) showPendingRequests(ctx context.Context, s *session, chatID int64) []Response {
	requests, err := m.svc.PendingRequests(ctx)
	if err != nil {
		return m.failToMenu(s, chatID, err)
	}

	if len(requests) == 0 {
		return []Response{reply(chatID, "📭 Нет заявок на рассмотрение.")}
	}

	res := make([]Response, 0, len(requests))
	for _, r := range requests {
		res = append(res, Response{
			ChatID: chatID,
			Text: fmt.Sprintf("📩 Заявка #%d\n👤 Сотрудник: %s\n📌 Цель: %s\n🕒 Время: %s",
				r.ID, r.FullName, r.Description, r.CreatedAt.Format("2006-01-02 15:04")),
			Inline: [][]Button{{
				{Label: "✅ Одобрить", Data: fmt.Sprintf("approve_%d", r.ID)},
				{Label: "❌ Отклонить", Data: fmt.Sprintf("reject_%d", r.ID)},
			}},
		})
	}
	return res
}

func (m *Machine) navigateCalendar(s *session, chatID int64, raw string) []Response {
	if s.state != stateChooseDate {
		return nil
	}

	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return nil
	}

	return []Response{{
		ChatID: chatID,
		Text:   "Выберите дату для ухода:",
		Inline: calendarKeyboard(t.Year(), t.Month(), m.now()),
	}}
}

func (m *Machine) selectDate(ctx context.Context, s *session, chatID int64, raw string) []Response {
	if s.state != stateChooseDate {
		return m.fallback(s, chatID)
	}

	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return m.fallback(s, chatID)
	}

	today := m.now()
	if date.Before(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)) {
		return []Response{reply(chatID, "Нельзя выбрать прошедшую дату. Выберите другую дату.")}
	}

	u, err := m.svc.GetUser(ctx, chatID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return m.toMenu(s, chatID, "Вы не зарегистрированы.")
	}
	if err != nil {
		return m.failToMenu(s, chatID, err)
	}

	// Дата могла быть занята, пока пользователь смотрел календарь.
	ok, err := m.svc.IsDateAvailable(ctx, date, u.Role)
	if err != nil {
		return m.failToMenu(s, chatID, err)
	}
	if !ok {
		return []Response{reply(chatID, "Эта дата уже занята. Выберите другую.")}
	}

	s.date = date
	cost := m.svc.EarlyLeaveCost(s.hours)
	s.description = fmt.Sprintf("Уйти на %d ч. раньше %s (стоимость: %d баллов)",
		s.hours, date.Format("02.01.2006"), cost)
	s.state = stateConfirmRequest

	return []Response{{
		ChatID: chatID,
		Text: fmt.Sprintf("Вы выбрали дату: %s\nОписание: %s\n\nОтправить заявку?",
			date.Format("02.01.2006"), s.description),
		Inline: [][]Button{{
			{Label: "✅ Подтвердить", Data: "confirm_request"},
			{Label: "❌ Отмена", Data: "cancel_request"},
		}},
	}}
}

func (m *Machine) confirmRequest(ctx context.Context, s *session, chatID int64) []Response {
	if s.state != stateConfirmRequest {
		return m.fallback(s, chatID)
	}

	cost := m.svc.EarlyLeaveCost(s.hours)
	date := s.date

	_, err := m.svc.SubmitRequest(ctx, chatID, s.description, model.CategoryEarlyLeave, &date, cost)
	switch {
	case errors.Is(err, service.ErrInsufficientBalance):
		balance := 0
		if u, uerr := m.svc.GetUser(ctx, chatID); uerr == nil {
			balance = u.Points
		}
		return m.toMenu(s, chatID, fmt.Sprintf("❌ Недостаточно баллов. Ваш баланс: %d, требуется: %d", balance, cost))

	case errors.Is(err, repository.ErrDateUnavailable):
		// Дату заняли между подтверждением и записью: обратно к календарю.
		s.state = stateChooseDate
		today := m.now()
		return []Response{{
			ChatID: chatID,
			Text:   "Эта дата больше не доступна. Выберите другую.",
			Inline: calendarKeyboard(today.Year(), today.Month(), today),
		}}

	case errors.Is(err, repository.ErrUserNotFound):
		return m.toMenu(s, chatID, "❌ Ошибка: пользователь не найден.")

	case err != nil:
		return m.failToMenu(s, chatID, err)
	}

	return m.toMenu(s, chatID,
		fmt.Sprintf("✅ Заявка отправлена!\n\nОписание: %s\nАдминистраторы получили уведомление.", s.description))
}
