// Package bot реализует конечный автомат диалогов: по текущему состоянию
// сессии и входящему событию выбирается переход и побочный эффект.
// Пакет не зависит от конкретного чат-транспорта.
package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/staffpoints/internal/assets"
	"github.com/mmeshcher/staffpoints/internal/config"
	"github.com/mmeshcher/staffpoints/internal/service"
)

// EventKind описывает вид входящего события.
type EventKind int

const (
	// EventText — текстовое сообщение или нажатие кнопки reply-клавиатуры.
	EventText EventKind = iota
	// EventButton — нажатие инлайн-кнопки; Text содержит её payload.
	EventButton
)

// Event — входящее событие чата.
type Event struct {
	From int64
	Kind EventKind
	Text string
}

// Button — инлайн-кнопка исходящего сообщения.
type Button struct {
	Label string
	Data  string
}

// Response — исходящее сообщение. Menu задаёт reply-клавиатуру,
// Inline — инлайн-кнопки; одновременно используется не более одного.
type Response struct {
	ChatID int64
	Text   string
	Menu   [][]string
	Inline [][]Button
}

type state int

const (
	stateMainMenu state = iota
	stateRegistrationName
	stateRegistrationRole
	stateChooseDirection
	stateChooseTarget
	stateChooseReason
	stateEnterCustomPoints
	stateEnterDeduction
	stateChooseHistoryTarget
	stateChooseUsageType
	stateChooseDate
	stateConfirmRequest
	stateEnterDescription
	stateEditTextInput
)

// session — переходное состояние одного диалога. Не сохраняется:
// при перезапуске процесса диалог начинается с главного меню.
type session struct {
	state       state
	silent      bool
	deduct      bool
	fullName    string
	targetID    int64
	scores      []config.ScoreEntry
	hours       int
	date        time.Time
	description string
	editMode    string
}

// Machine — конечный автомат диалогов бота.
type Machine struct {
	svc    *service.Service
	assets *assets.Store
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[int64]*session
}

// NewMachine создаёт автомат диалогов.
func NewMachine(svc *service.Service, assets *assets.Store, logger *zap.Logger) *Machine {
	return &Machine{
		svc:      svc,
		assets:   assets,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[int64]*session),
	}
}

func (m *Machine) session(id int64) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		s = &session{state: stateMainMenu}
		m.sessions[id] = s
	}
	return s
}

// Dispatch обрабатывает входящее событие и возвращает исходящие сообщения.
// Нераспознанный ввод никогда не роняет сессию: либо повтор запроса на месте,
// либо возврат в главное меню с пояснением.
func (m *Machine) Dispatch(ctx context.Context, ev Event) []Response {
	s := m.session(ev.From)

	if ev.Kind == EventButton {
		return m.handleButton(ctx, s, ev)
	}

	switch s.state {
	case stateRegistrationName:
		return m.handleRegistrationName(ctx, s, ev)
	case stateRegistrationRole:
		return m.handleRegistrationRole(ctx, s, ev)
	case stateChooseDirection:
		return m.handleChooseDirection(ctx, s, ev)
	case stateChooseTarget:
		return m.handleChooseTarget(ctx, s, ev)
	case stateChooseReason:
		return m.handleChooseReason(ctx, s, ev)
	case stateEnterCustomPoints:
		return m.handleEnterCustomPoints(ctx, s, ev)
	case stateEnterDeduction:
		return m.handleEnterDeduction(ctx, s, ev)
	case stateChooseHistoryTarget:
		return m.handleChooseHistoryTarget(ctx, s, ev)
	case stateChooseUsageType:
		return m.handleChooseUsageType(ctx, s, ev)
	case stateChooseDate:
		return m.handleChooseDateText(ctx, s, ev)
	case stateEnterDescription:
		return m.handleEnterDescription(ctx, s, ev)
	case stateEditTextInput:
		return m.handleEditTextInput(ctx, s, ev)
	default:
		return m.handleMainMenu(ctx, s, ev)
	}
}

func reply(chatID int64, text string) Response {
	return Response{ChatID: chatID, Text: text}
}

func replyMenu(chatID int64, text string, menu [][]string) Response {
	return Response{ChatID: chatID, Text: text, Menu: menu}
}

func (m *Machine) isStaff(id int64) bool {
	return m.svc.IsAdmin(id) || m.svc.IsSuperAdmin(id)
}

// mainMenu возвращает клавиатуру главного меню по уровню доступа.
func (m *Machine) mainMenu(userID int64) [][]string {
	switch {
	case m.svc.IsSuperAdmin(userID):
		return [][]string{
			{"Начислить/Списать баллы"},
			{"Начислить/Списать баллы (silent)"},
			{"Очередь использования баллов"},
			{"Проверка заявок на использование"},
			{"История сотрудника"},
			{"Сотрудники"},
			{"Изменения"},
		}
	case m.svc.IsAdmin(userID):
		return [][]string{
			{"Начислить/Списать баллы"},
			{"Очередь использования баллов"},
			{"Проверка заявок на использование"},
			{"История сотрудника"},
			{"Сотрудники"},
			{"Изменения"},
		}
	default:
		return [][]string{
			{"Мой баланс"},
			{"История"},
			{"Использовать баллы"},
			{"Сотрудники"},
			{"Прайс-лист"},
			{"Правила"},
		}
	}
}

func (m *Machine) toMenu(s *session, chatID int64, text string) []Response {
	s.state = stateMainMenu
	return []Response{
		reply(chatID, text),
		replyMenu(chatID, "Выберите действие:", m.mainMenu(chatID)),
	}
}

// fallback возвращает сессию в главное меню при нераспознанном вводе.
func (m *Machine) fallback(s *session, chatID int64) []Response {
	return m.toMenu(s, chatID, "Неизвестная команда. Возвращаюсь в главное меню.")
}

// failToMenu логирует ошибку хранилища и возвращает сессию в главное меню.
func (m *Machine) failToMenu(s *session, chatID int64, err error) []Response {
	m.logger.Error("storage error", zap.Error(err), zap.Int64("chatID", chatID))
	return m.toMenu(s, chatID, "Произошла ошибка. Попробуйте ещё раз.")
}
