package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmeshcher/staffpoints/internal/config"
	"github.com/mmeshcher/staffpoints/internal/model"
	"github.com/mmeshcher/staffpoints/internal/repository"
	"github.com/mmeshcher/staffpoints/internal/validation"
)

func (m *Machine) handleMainMenu(ctx context.Context, s *session, ev Event) []Response {
	text := strings.TrimSpace(ev.Text)

	// Точка входа: известные хранилищу сотрудники и администраторы из
	// списков доступа попадают в меню, незнакомые — на регистрацию.
	if !m.isStaff(ev.From) {
		_, err := m.svc.GetUser(ctx, ev.From)
		if errors.Is(err, repository.ErrUserNotFound) {
			if text == "/start" {
				s.state = stateRegistrationName
				return []Response{reply(ev.From, "Добро пожаловать! Пожалуйста, введите ваше ФИО для регистрации:")}
			}
			return []Response{reply(ev.From, "Вы не зарегистрированы. Напишите /start.")}
		}
		if err != nil {
			return m.failToMenu(s, ev.From, err)
		}
	}

	switch text {
	case "/start":
		return []Response{replyMenu(ev.From, "Выберите действие:", m.mainMenu(ev.From))}

	case "Мой баланс":
		u, err := m.svc.GetUser(ctx, ev.From)
		if errors.Is(err, repository.ErrUserNotFound) {
			return []Response{reply(ev.From, "Вы не зарегистрированы в системе.")}
		}
		if err != nil {
			return m.failToMenu(s, ev.From, err)
		}
		return []Response{reply(ev.From, fmt.Sprintf("%s, ваш баланс: %d баллов", u.FullName, u.Points))}

	case "История":
		history, err := m.svc.GetHistory(ctx, ev.From)
		if err != nil {
			return m.failToMenu(s, ev.From, err)
		}
		if len(history) == 0 {
			return []Response{reply(ev.From, "История пуста.")}
		}
		return []Response{reply(ev.From, m.formatHistory("История операций:", history))}

	case "Использовать баллы":
		return m.beginUsage(ctx, s, ev.From)

	case "Сотрудники":
		return []Response{{
			ChatID: ev.From,
			Text:   "Выберите роль для отображения:",
			Inline: [][]Button{{
				{Label: string(model.RoleSupport), Data: "role_" + string(model.RoleSupport)},
				{Label: string(model.RoleConsultant), Data: "role_" + string(model.RoleConsultant)},
			}},
		}}

	case "Прайс-лист":
		return []Response{reply(ev.From, m.assets.Price())}

	case "Правила":
		return []Response{reply(ev.From, m.assets.Rules())}

	case "Начислить/Списать баллы", "Начислить/Списать баллы (silent)":
		if !m.isStaff(ev.From) {
			return []Response{reply(ev.From, "⛔️ У вас нет доступа к этой функции.")}
		}
		if strings.HasSuffix(text, "(silent)") && !m.svc.IsSuperAdmin(ev.From) {
			return []Response{reply(ev.From, "⛔️ У вас нет доступа к этой функции.")}
		}
		s.silent = strings.HasSuffix(text, "(silent)")
		s.state = stateChooseDirection
		return []Response{replyMenu(ev.From, "Выберите действие:", [][]string{
			{"Начислить баллы"},
			{"Списать баллы"},
		})}

	case "Очередь использования баллов":
		if !m.isStaff(ev.From) {
			return []Response{reply(ev.From, "⛔️ У вас нет доступа к этой функции.")}
		}
		return m.showApprovedQueue(ctx, s, ev.From)

	case "Проверка заявок на использование":
		if !m.isStaff(ev.From) {
			return []Response{reply(ev.From, "⛔️ У вас нет доступа к этой функции.")}
		}
		return m.showPendingRequests(ctx, s, ev.From)

	case "История сотрудника":
		if !m.isStaff(ev.From) {
			return []Response{reply(ev.From, "⛔️ У вас нет доступа к этой функции.")}
		}
		menu, err := m.userMenu(ctx)
		if err != nil {
			return m.failToMenu(s, ev.From, err)
		}
		s.state = stateChooseHistoryTarget
		return []Response{replyMenu(ev.From, "Выберите сотрудника для просмотра истории:", menu)}

	case "Изменения":
		if !m.isStaff(ev.From) {
			return []Response{reply(ev.From, "⛔️ У вас нет доступа к этой функции.")}
		}
		return []Response{replyMenu(ev.From, "Меню изменений:", [][]string{
			{"Удаление сотрудника"},
			{"Изменить правила"},
			{"Изменить прайс-лист"},
			{"Назад"},
		})}

	case "Удаление сотрудника":
		if !m.isStaff(ev.From) {
			return []Response{reply(ev.From, "⛔️ У вас нет доступа к этой функции.")}
		}
		return m.showEmployeesForDeletion(ctx, s, ev.From)

	case "Изменить правила":
		if !m.isStaff(ev.From) {
			return []Response{reply(ev.From, "⛔️ У вас нет доступа к этой функции.")}
		}
		s.editMode = "rules"
		s.state = stateEditTextInput
		return []Response{reply(ev.From, "Введите новый текст правил:")}

	case "Изменить прайс-лист":
		if !m.isStaff(ev.From) {
			return []Response{reply(ev.From, "⛔️ У вас нет доступа к этой функции.")}
		}
		s.editMode = "price"
		s.state = stateEditTextInput
		return []Response{reply(ev.From, "Введите новый прайс-лист:")}

	case "Назад":
		return []Response{replyMenu(ev.From, "Выберите действие:", m.mainMenu(ev.From))}

	default:
		return m.fallback(s, ev.From)
	}
}

func (m *Machine) handleRegistrationName(_ context.Context, s *session, ev Event) []Response {
	fio := strings.TrimSpace(ev.Text)
	if fio == "" {
		return []Response{reply(ev.From, "ФИО не может быть пустым. Введите снова:")}
	}

	s.fullName = fio
	s.state = stateRegistrationRole
	return []Response{replyMenu(ev.From, "Выберите вашу роль:", [][]string{
		{string(model.RoleConsultant)},
		{string(model.RoleSupport)},
	})}
}

func (m *Machine) handleRegistrationRole(ctx context.Context, s *session, ev Event) []Response {
	role := model.Role(strings.TrimSpace(ev.Text))
	if role != model.RoleConsultant && role != model.RoleSupport {
		return []Response{reply(ev.From, "Пожалуйста, выберите роль из кнопок.")}
	}

	if err := m.svc.RegisterUser(ctx, ev.From, s.fullName, role); err != nil {
		return m.failToMenu(s, ev.From, err)
	}

	return m.toMenu(s, ev.From, fmt.Sprintf("Регистрация завершена! Добро пожаловать, %s (%s) 🎉", s.fullName, role))
}

// userMenu строит reply-клавиатуру выбора сотрудника вида "ФИО (id)".
func (m *Machine) userMenu(ctx context.Context) ([][]string, error) {
	users, err := m.svc.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	menu := make([][]string, 0, len(users))
	for _, u := range users {
		menu = append(menu, []string{fmt.Sprintf("%s (%d)", u.FullName, u.ID)})
	}
	return menu, nil
}

func (m *Machine) handleChooseDirection(ctx context.Context, s *session, ev Event) []Response {
	switch ev.Text {
	case "Начислить баллы":
		s.deduct = false
	case "Списать баллы":
		s.deduct = true
	default:
		return []Response{reply(ev.From, "Пожалуйста, выберите из вариантов.")}
	}

	menu, err := m.userMenu(ctx)
	if err != nil {
		return m.failToMenu(s, ev.From, err)
	}

	s.state = stateChooseTarget
	return []Response{replyMenu(ev.From, "Выберите сотрудника:", menu)}
}

func (m *Machine) handleChooseTarget(ctx context.Context, s *session, ev Event) []Response {
	id, err := validation.ParseUserChoice(ev.Text)
	if err != nil {
		return []Response{reply(ev.From, "Неверный формат. Попробуйте снова.")}
	}
	s.targetID = id

	if s.deduct {
		s.state = stateEnterDeduction
		return []Response{reply(ev.From,
			"Введите количество баллов для списания и причину через точку с запятой (;).\nНапример: 50; Ошибка в учёте")}
	}

	u, err := m.svc.GetUser(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return []Response{reply(ev.From, "Сотрудник не найден.")}
	}
	if err != nil {
		return m.failToMenu(s, ev.From, err)
	}

	if u.Role == model.RoleSupport {
		s.scores = config.SupportScores()
	} else {
		s.scores = config.ConsultantScores()
	}

	menu := make([][]string, 0, len(s.scores)+1)
	for _, e := range s.scores {
		menu = append(menu, []string{e.Reason})
	}
	menu = append(menu, []string{"Другое"})

	s.state = stateChooseReason
	return []Response{replyMenu(ev.From, "Выберите причину:", menu)}
}

func (m *Machine) handleChooseReason(ctx context.Context, s *session, ev Event) []Response {
	if ev.Text == "Другое" {
		s.state = stateEnterCustomPoints
		return []Response{reply(ev.From, "Введите количество баллов (целое число):")}
	}

	points := 0
	found := false
	for _, e := range s.scores {
		if e.Reason == ev.Text {
			points = e.Points
			found = true
			break
		}
	}
	if !found {
		return []Response{reply(ev.From, "Неверная причина. Попробуйте снова.")}
	}

	return m.applyAdjustment(ctx, s, ev.From, points, ev.Text)
}

func (m *Machine) handleEnterCustomPoints(ctx context.Context, s *session, ev Event) []Response {
	points, err := validation.ParsePoints(ev.Text)
	if err != nil {
		return []Response{reply(ev.From, "Пожалуйста, введите целое число.")}
	}

	return m.applyAdjustment(ctx, s, ev.From, points, "Другое (вручную)")
}

func (m *Machine) handleEnterDeduction(ctx context.Context, s *session, ev Event) []Response {
	points, reason, err := validation.ParseDeduction(ev.Text)
	if err != nil {
		return []Response{reply(ev.From,
			"Неверный формат. Введите количество баллов и причину через точку с запятой (;), например:\n50; Ошибка в учёте")}
	}

	return m.applyAdjustment(ctx, s, ev.From, points, reason)
}

func (m *Machine) applyAdjustment(ctx context.Context, s *session, adminID int64, points int, reason string) []Response {
	_, err := m.svc.AdjustPoints(ctx, adminID, s.targetID, points, reason, s.deduct, s.silent)
	if errors.Is(err, repository.ErrUserNotFound) {
		return m.toMenu(s, adminID, "Сотрудник не найден.")
	}
	if err != nil {
		return m.failToMenu(s, adminID, err)
	}

	verb := "Начислено"
	if s.deduct || points < 0 {
		verb = "Списано"
		if points < 0 {
			points = -points
		}
	}
	return m.toMenu(s, adminID, fmt.Sprintf("%s %d баллов за '%s'.", verb, points, reason))
}

func (m *Machine) handleChooseHistoryTarget(ctx context.Context, s *session, ev Event) []Response {
	id, err := validation.ParseUserChoice(ev.Text)
	if err != nil {
		return []Response{reply(ev.From, "Неверный формат. Попробуйте снова.")}
	}

	u, err := m.svc.GetUser(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return []Response{reply(ev.From, "Сотрудник не найден.")}
	}
	if err != nil {
		return m.failToMenu(s, ev.From, err)
	}

	history, err := m.svc.GetHistory(ctx, id)
	if err != nil {
		return m.failToMenu(s, ev.From, err)
	}

	var text string
	if len(history) == 0 {
		text = fmt.Sprintf("История операций для %s пуста.\nТекущий баланс: %d баллов.", u.FullName, u.Points)
	} else {
		header := fmt.Sprintf("Последние операции для %s (текущий баланс: %d баллов):\n", u.FullName, u.Points)
		text = m.formatHistory(header, history)
	}

	return m.toMenu(s, ev.From, text)
}

func (m *Machine) formatHistory(header string, history []model.HistoryRecord) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for _, rec := range history {
		sign := ""
		if rec.Points > 0 {
			sign = "+"
		}
		fmt.Fprintf(&b, "%s: %s%d за %s (от %s)\n",
			rec.Timestamp.Format("2006-01-02 15:04"), sign, rec.Points, rec.Reason, m.svc.AdminName(rec.AdminID))
	}
	return b.String()
}

func (m *Machine) beginUsage(ctx context.Context, s *session, chatID int64) []Response {
	u, err := m.svc.GetUser(ctx, chatID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return []Response{reply(chatID, "Вы не зарегистрированы.")}
	}
	if err != nil {
		return m.failToMenu(s, chatID, err)
	}

	if u.Points <= 0 {
		return []Response{reply(chatID, fmt.Sprintf("Заявка не может быть отправлена.\nВаш баланс: %d", u.Points))}
	}

	s.state = stateChooseUsageType
	return []Response{replyMenu(chatID, "Выберите как вы хотите использовать баллы:", [][]string{
		{"Уйти на 1 час раньше"},
		{"Уйти на 2 часа раньше"},
		{"Уйти на 3 часа раньше"},
		{"Другое использование"},
	})}
}

func (m *Machine) handleChooseUsageType(_ context.Context, s *session, ev Event) []Response {
	hoursByChoice := map[string]int{
		"Уйти на 1 час раньше":  1,
		"Уйти на 2 часа раньше": 2,
		"Уйти на 3 часа раньше": 3,
	}

	switch ev.Text {
	case "Уйти на 1 час раньше", "Уйти на 2 часа раньше", "Уйти на 3 часа раньше":
		s.hours = hoursByChoice[ev.Text]
		today := m.now()
		s.state = stateChooseDate
		return []Response{{
			ChatID: ev.From,
			Text:   "Выберите дату для ухода:",
			Inline: calendarKeyboard(today.Year(), today.Month(), today),
		}}
	case "Другое использование":
		s.state = stateEnterDescription
		return []Response{reply(ev.From, "Опишите, как вы хотите использовать баллы:")}
	default:
		return []Response{reply(ev.From, "Пожалуйста, выберите из вариантов.")}
	}
}

// handleChooseDateText обрабатывает текстовый ввод в состоянии выбора даты:
// поддерживается только отмена, остальное — подсказка вернуться к календарю.
func (m *Machine) handleChooseDateText(_ context.Context, s *session, ev Event) []Response {
	if strings.TrimSpace(ev.Text) == "Отмена" {
		return m.toMenu(s, ev.From, "Выбор даты отменен.")
	}
	return []Response{reply(ev.From, "Выберите дату в календаре или нажмите «Отмена».")}
}

func (m *Machine) handleEnterDescription(ctx context.Context, s *session, ev Event) []Response {
	desc := strings.TrimSpace(ev.Text)
	if desc == "" {
		return []Response{reply(ev.From, "Описание не может быть пустым. Введите снова:")}
	}

	_, err := m.svc.SubmitRequest(ctx, ev.From, desc, model.CategoryOther, nil, 0)
	if errors.Is(err, repository.ErrUserNotFound) {
		return m.toMenu(s, ev.From, "Вы не зарегистрированы.")
	}
	if err != nil {
		return m.failToMenu(s, ev.From, err)
	}

	return m.toMenu(s, ev.From, "Заявка отправлена администраторам.")
}

func (m *Machine) handleEditTextInput(_ context.Context, s *session, ev Event) []Response {
	text := strings.TrimSpace(ev.Text)

	switch s.editMode {
	case "rules":
		m.assets.SetRules(text)
		s.editMode = ""
		return m.toMenu(s, ev.From, "✅ Правила обновлены.")
	case "price":
		m.assets.SetPrice(text)
		s.editMode = ""
		return m.toMenu(s, ev.From, "✅ Прайс-лист обновлён.")
	default:
		return m.toMenu(s, ev.From, "⚠️ Неизвестный режим редактирования.")
	}
}
