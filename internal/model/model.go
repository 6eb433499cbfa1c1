// Package model содержит доменные сущности системы учёта баллов.
package model

import "time"

// Role описывает роль сотрудника.
type Role string

const (
	RoleConsultant Role = "Консультант"
	RoleSupport    Role = "УСМ"
)

// User представляет зарегистрированного сотрудника с текущим балансом баллов.
type User struct {
	ID       int64
	FullName string
	Role     Role
	Points   int
}

// RequestStatus описывает статус заявки на использование баллов.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// RequestCategory описывает категорию заявки. Заявки категории "ранний уход"
// привязаны к дате и учитываются в лимите одобренных заявок на день.
type RequestCategory string

const (
	CategoryEarlyLeave RequestCategory = "early_leave"
	CategoryOther      RequestCategory = "other"
)

// HistoryRecord описывает одну операцию начисления или списания баллов.
type HistoryRecord struct {
	ID        int64
	AdminID   int64
	UserID    int64
	Points    int
	Reason    string
	Timestamp time.Time
}

// UsageRequest описывает заявку сотрудника на использование баллов.
type UsageRequest struct {
	ID          int64
	UserID      int64
	Description string
	Status      RequestStatus
	Category    RequestCategory
	CreatedAt   time.Time
	BookingDate *time.Time
}

// RequestView — заявка вместе с именем сотрудника для списков на рассмотрение.
// Имя заполняется как "Неизвестный", если сотрудник уже удалён.
type RequestView struct {
	UsageRequest
	FullName string
}
