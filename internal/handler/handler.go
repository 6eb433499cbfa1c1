// Package handler содержит HTTP-обработчики служебного API бота.
// API только читает данные: все изменения проходят через чат.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/staffpoints/internal/model"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	ListUsers(ctx context.Context) ([]model.User, error)
	PendingRequests(ctx context.Context) ([]model.RequestView, error)
	ApprovedQueue(ctx context.Context, limit int) ([]model.RequestView, error)
	Ping(ctx context.Context) error
}

// Handler реализует HTTP-обработчики служебного API.
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger) *Handler {
	return &Handler{service: s, logger: logger}
}

// Healthz проверяет доступность хранилища.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("healthz error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type userResponse struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Points   int    `json:"points"`
}

// GetUsers возвращает список сотрудников с балансами.
func (h *Handler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userResponse{
			ID:       u.ID,
			FullName: u.FullName,
			Role:     string(u.Role),
			Points:   u.Points,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type requestResponse struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	FullName    string  `json:"full_name"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Category    string  `json:"category"`
	CreatedAt   string  `json:"created_at"`
	BookingDate *string `json:"booking_date,omitempty"`
}

func toRequestResponses(requests []model.RequestView) []requestResponse {
	resp := make([]requestResponse, 0, len(requests))
	for _, r := range requests {
		item := requestResponse{
			ID:          r.ID,
			UserID:      r.UserID,
			FullName:    r.FullName,
			Description: r.Description,
			Status:      string(r.Status),
			Category:    string(r.Category),
			CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		}
		if r.BookingDate != nil {
			d := r.BookingDate.Format("2006-01-02")
			item.BookingDate = &d
		}
		resp = append(resp, item)
	}
	return resp
}

// GetPending возвращает заявки на рассмотрении, старые первыми.
func (h *Handler) GetPending(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.PendingRequests(r.Context())
	if err != nil {
		h.logger.Error("list pending error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toRequestResponses(requests)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetApproved возвращает последние одобренные заявки, новые первыми.
func (h *Handler) GetApproved(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	requests, err := h.service.ApprovedQueue(r.Context(), limit)
	if err != nil {
		h.logger.Error("list approved error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toRequestResponses(requests)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}
