package repository

import (
	"context"
	"sync"
	"time"

	"github.com/mmeshcher/staffpoints/internal/model"
)

// MemoryRepository — потокобезопасная реализация хранилища в памяти
// с той же семантикой, что у PostgresRepository. Используется в тестах
// и при локальной разработке без БД.
type MemoryRepository struct {
	mu           sync.Mutex
	dateCapacity int

	users     map[int64]*model.User
	userOrder []int64

	history    []model.HistoryRecord
	requests   map[int64]*model.UsageRequest
	nextHistID int64
	nextReqID  int64
}

// NewMemoryRepository создаёт пустое хранилище в памяти.
func NewMemoryRepository(dateCapacity int) *MemoryRepository {
	return &MemoryRepository{
		dateCapacity: dateCapacity,
		users:        make(map[int64]*model.User),
		requests:     make(map[int64]*model.UsageRequest),
		nextHistID:   1,
		nextReqID:    1,
	}
}

// Close освобождает ресурсы хранилища.
func (m *MemoryRepository) Close() error { return nil }

// Ping проверяет доступность хранилища.
func (m *MemoryRepository) Ping(context.Context) error { return nil }

// GetUser возвращает сотрудника по идентификатору.
func (m *MemoryRepository) GetUser(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

// CreateUser регистрирует сотрудника; повторная регистрация — no-op.
func (m *MemoryRepository) CreateUser(_ context.Context, id int64, fullName string, role model.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; ok {
		return nil
	}
	m.users[id] = &model.User{ID: id, FullName: fullName, Role: role}
	m.userOrder = append(m.userOrder, id)
	return nil
}

// ListUsers возвращает сотрудников в порядке регистрации.
func (m *MemoryRepository) ListUsers(context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]model.User, 0, len(m.users))
	for _, id := range m.userOrder {
		if u, ok := m.users[id]; ok {
			res = append(res, *u)
		}
	}
	return res, nil
}

// DeleteUser удаляет сотрудника; история и заявки остаются.
func (m *MemoryRepository) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.users, id)
	return nil
}

// ApplyPoints изменяет баланс и при silent = false пишет запись истории.
func (m *MemoryRepository) ApplyPoints(_ context.Context, adminID, userID int64, delta int, reason string, silent bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}

	u.Points += delta

	if !silent {
		m.history = append(m.history, model.HistoryRecord{
			ID:        m.nextHistID,
			AdminID:   adminID,
			UserID:    userID,
			Points:    delta,
			Reason:    reason,
			Timestamp: time.Now(),
		})
		m.nextHistID++
	}

	return u.Points, nil
}

// GetHistory возвращает историю сотрудника, новые записи первыми.
func (m *MemoryRepository) GetHistory(_ context.Context, userID int64) ([]model.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.HistoryRecord
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].UserID == userID {
			res = append(res, m.history[i])
		}
	}
	return res, nil
}

func (m *MemoryRepository) countApprovedLocked(date time.Time, role model.Role) int {
	count := 0
	for _, r := range m.requests {
		if r.Status != model.RequestStatusApproved || r.Category != model.CategoryEarlyLeave || r.BookingDate == nil {
			continue
		}
		u, ok := m.users[r.UserID]
		if !ok || u.Role != role {
			continue
		}
		if sameDate(*r.BookingDate, date) {
			count++
		}
	}
	return count
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// CreateRequest создаёт заявку; доступность даты проверяется атомарно.
func (m *MemoryRepository) CreateRequest(_ context.Context, userID int64, description string, category model.RequestCategory, bookingDate *time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}

	if bookingDate != nil && category == model.CategoryEarlyLeave {
		if m.countApprovedLocked(*bookingDate, u.Role) >= m.dateCapacity {
			return 0, ErrDateUnavailable
		}
	}

	id := m.nextReqID
	m.nextReqID++
	m.requests[id] = &model.UsageRequest{
		ID:          id,
		UserID:      userID,
		Description: description,
		Status:      model.RequestStatusPending,
		Category:    category,
		CreatedAt:   time.Now(),
		BookingDate: bookingDate,
	}
	return id, nil
}

// GetRequest возвращает заявку по идентификатору.
func (m *MemoryRepository) GetRequest(_ context.Context, id int64) (*model.UsageRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *MemoryRepository) viewLocked(r *model.UsageRequest) model.RequestView {
	name := "Неизвестный"
	if u, ok := m.users[r.UserID]; ok {
		name = u.FullName
	}
	return model.RequestView{UsageRequest: *r, FullName: name}
}

// ListPending возвращает заявки на рассмотрении, старые первыми.
func (m *MemoryRepository) ListPending(context.Context) ([]model.RequestView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.RequestView
	for id := int64(1); id < m.nextReqID; id++ {
		if r, ok := m.requests[id]; ok && r.Status == model.RequestStatusPending {
			res = append(res, m.viewLocked(r))
		}
	}
	return res, nil
}

// ListApproved возвращает последние одобренные заявки, новые первыми.
func (m *MemoryRepository) ListApproved(_ context.Context, limit int) ([]model.RequestView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res []model.RequestView
	for id := m.nextReqID - 1; id >= 1 && len(res) < limit; id-- {
		if r, ok := m.requests[id]; ok && r.Status == model.RequestStatusApproved {
			res = append(res, m.viewLocked(r))
		}
	}
	return res, nil
}

// SetStatus переводит заявку из pending в терминальный статус ровно один раз.
func (m *MemoryRepository) SetStatus(_ context.Context, id int64, status model.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if r.Status != model.RequestStatusPending {
		return ErrAlreadyDecided
	}

	if status == model.RequestStatusApproved && r.BookingDate != nil && r.Category == model.CategoryEarlyLeave {
		if u, ok := m.users[r.UserID]; ok {
			if m.countApprovedLocked(*r.BookingDate, u.Role) >= m.dateCapacity {
				return ErrDateUnavailable
			}
		}
	}

	r.Status = status
	return nil
}

// IsDateAvailable сообщает, не исчерпан ли лимит одобренных заявок на дату.
func (m *MemoryRepository) IsDateAvailable(_ context.Context, date time.Time, role model.Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.countApprovedLocked(date, role) < m.dateCapacity, nil
}

// ClearApproved удаляет все одобренные заявки.
func (m *MemoryRepository) ClearApproved(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.requests {
		if r.Status == model.RequestStatusApproved {
			delete(m.requests, id)
		}
	}
	return nil
}
