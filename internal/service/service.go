// Package service реализует бизнес-логику учёта баллов и заявок.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/staffpoints/internal/config"
	"github.com/mmeshcher/staffpoints/internal/model"
)

// ErrInsufficientBalance возвращается при попытке отправить заявку,
// стоимость которой превышает баланс сотрудника.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNotAllowed возвращается, если решение по заявке принимает не администратор.
	ErrNotAllowed = errors.New("operation not allowed")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	CreateUser(ctx context.Context, id int64, fullName string, role model.Role) error
	ListUsers(ctx context.Context) ([]model.User, error)
	DeleteUser(ctx context.Context, id int64) error
	ApplyPoints(ctx context.Context, adminID, userID int64, delta int, reason string, silent bool) (int, error)
	GetHistory(ctx context.Context, userID int64) ([]model.HistoryRecord, error)
	CreateRequest(ctx context.Context, userID int64, description string, category model.RequestCategory, bookingDate *time.Time) (int64, error)
	GetRequest(ctx context.Context, id int64) (*model.UsageRequest, error)
	ListPending(ctx context.Context) ([]model.RequestView, error)
	ListApproved(ctx context.Context, limit int) ([]model.RequestView, error)
	SetStatus(ctx context.Context, id int64, status model.RequestStatus) error
	IsDateAvailable(ctx context.Context, date time.Time, role model.Role) (bool, error)
	ClearApproved(ctx context.Context) error
}

// Button описывает инлайн-кнопку исходящего уведомления.
type Button struct {
	Label string
	Data  string
}

// Notifier доставляет уведомления пользователям вне текущего диалога.
// Доставка выполняется по мере возможности: ошибка доставки не отменяет
// уже применённую операцию.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string, buttons ...Button) error
}

// Service содержит бизнес-логику учёта баллов и жизненного цикла заявок.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *zap.Logger
	cfg      *config.Config
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

// SetNotifier подключает канал уведомлений. Без него уведомления пропускаются.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// IsAdmin сообщает, является ли идентификатор администратором.
func (s *Service) IsAdmin(id int64) bool {
	return s.cfg.IsAdmin(id)
}

// IsSuperAdmin сообщает, является ли идентификатор супер-администратором.
func (s *Service) IsSuperAdmin(id int64) bool {
	return s.cfg.IsSuperAdmin(id)
}

// AdminName возвращает имя администратора для истории операций.
func (s *Service) AdminName(id int64) string {
	if name, ok := s.cfg.AdminNames[id]; ok {
		return name
	}
	return "Неизвестный"
}

// RegisterUser регистрирует сотрудника с нулевым балансом.
// Повторная регистрация не является ошибкой и ничего не меняет.
func (s *Service) RegisterUser(ctx context.Context, id int64, fullName string, role model.Role) error {
	return s.repo.CreateUser(ctx, id, fullName, role)
}

// GetUser возвращает сотрудника по идентификатору.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUser(ctx, id)
}

// ListUsers возвращает список всех сотрудников.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.ListUsers(ctx)
}

// DeleteUser удаляет сотрудника.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	return s.repo.DeleteUser(ctx, id)
}

// GetHistory возвращает историю операций сотрудника, новые записи первыми.
func (s *Service) GetHistory(ctx context.Context, userID int64) ([]model.HistoryRecord, error) {
	return s.repo.GetHistory(ctx, userID)
}

// AdjustPoints применяет изменение баллов и возвращает новый баланс.
// Списание всегда сохраняется с неположительной дельтой независимо от знака
// введённой величины. После не-silent операции сотруднику отправляется
// уведомление с новым балансом; ошибка доставки только логируется.
func (s *Service) AdjustPoints(ctx context.Context, adminID, userID int64, points int, reason string, deduct, silent bool) (int, error) {
	if deduct {
		if points < 0 {
			points = -points
		}
		points = -points
	}

	balance, err := s.repo.ApplyPoints(ctx, adminID, userID, points, reason, silent)
	if err != nil {
		return 0, err
	}

	if !silent {
		s.notifyPointsChange(ctx, userID, points, reason, balance)
	}

	return balance, nil
}

func (s *Service) notifyPointsChange(ctx context.Context, userID int64, points int, reason string, balance int) {
	if s.notifier == nil {
		return
	}

	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		s.logger.Error("notify points change: get user", zap.Error(err), zap.Int64("userID", userID))
		return
	}

	verb := "начислено"
	sign := "+"
	if points <= 0 {
		verb = "списано"
		sign = ""
	}
	text := fmt.Sprintf("%s, вам %s %s%d баллов за: %s.\nТекущий баланс: %d баллов.",
		u.FullName, verb, sign, points, reason, balance)

	if err := s.notifier.Notify(ctx, userID, text); err != nil {
		s.logger.Error("notify points change", zap.Error(err), zap.Int64("userID", userID))
	}
}

// EarlyLeaveCost возвращает стоимость раннего ухода на указанное число часов.
func (s *Service) EarlyLeaveCost(hours int) int {
	return s.cfg.HourCost * hours
}

// IsDateAvailable сообщает, доступна ли дата для заявки раннего ухода
// сотрудника с указанной ролью.
func (s *Service) IsDateAvailable(ctx context.Context, date time.Time, role model.Role) (bool, error) {
	return s.repo.IsDateAvailable(ctx, date, role)
}

// SubmitRequest создаёт заявку на использование баллов. Стоимость
// проверяется по свежему балансу непосредственно перед созданием, поэтому
// списания, произошедшие во время диалога, учитываются. Администраторы
// получают уведомление с кнопками решения.
func (s *Service) SubmitRequest(ctx context.Context, userID int64, description string, category model.RequestCategory, bookingDate *time.Time, cost int) (int64, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	if cost > 0 && u.Points < cost {
		return 0, ErrInsufficientBalance
	}

	id, err := s.repo.CreateRequest(ctx, userID, description, category, bookingDate)
	if err != nil {
		return 0, err
	}

	s.notifyAdminsNewRequest(ctx, id, u, description)

	return id, nil
}

func (s *Service) notifyAdminsNewRequest(ctx context.Context, requestID int64, u *model.User, description string) {
	if s.notifier == nil {
		return
	}

	text := fmt.Sprintf("📩 Новая заявка на использование баллов\n\n👤 Сотрудник: %s\n📌 Описание: %s\n💰 Баланс: %d баллов",
		u.FullName, description, u.Points)
	buttons := []Button{
		{Label: "✅ Одобрить", Data: fmt.Sprintf("approve_%d", requestID)},
		{Label: "❌ Отклонить", Data: fmt.Sprintf("reject_%d", requestID)},
	}

	for _, adminID := range s.cfg.Admins {
		if err := s.notifier.Notify(ctx, adminID, text, buttons...); err != nil {
			s.logger.Error("notify admin about request", zap.Error(err), zap.Int64("adminID", adminID))
		}
	}
}

// Decide принимает решение по заявке. Переход разрешён только администраторам
// и выполняется ровно один раз; повторное решение возвращает ErrAlreadyDecided.
// Сотрудник уведомляется об исходе.
func (s *Service) Decide(ctx context.Context, adminID, requestID int64, approve bool) (*model.UsageRequest, error) {
	if !s.IsAdmin(adminID) && !s.IsSuperAdmin(adminID) {
		return nil, ErrNotAllowed
	}

	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	status := model.RequestStatusRejected
	text := "❌ Ваша заявка была отклонена."
	if approve {
		status = model.RequestStatusApproved
		text = "✅ Ваша заявка была одобрена!"
	}

	if err := s.repo.SetStatus(ctx, requestID, status); err != nil {
		return req, err
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, req.UserID, text); err != nil {
			s.logger.Error("notify requester about decision", zap.Error(err), zap.Int64("userID", req.UserID))
		}
	}

	req.Status = status
	return req, nil
}

// PendingRequests возвращает заявки на рассмотрении, старые первыми.
func (s *Service) PendingRequests(ctx context.Context) ([]model.RequestView, error) {
	return s.repo.ListPending(ctx)
}

// ApprovedQueue возвращает последние одобренные заявки, новые первыми.
func (s *Service) ApprovedQueue(ctx context.Context, limit int) ([]model.RequestView, error) {
	return s.repo.ListApproved(ctx, limit)
}

// ClearApproved очищает очередь одобренных заявок.
func (s *Service) ClearApproved(ctx context.Context) error {
	return s.repo.ClearApproved(ctx)
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := s.repo.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
