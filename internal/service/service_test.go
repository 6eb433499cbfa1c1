package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/staffpoints/internal/config"
	"github.com/mmeshcher/staffpoints/internal/model"
	"github.com/mmeshcher/staffpoints/internal/repository"
)

type note struct {
	userID  int64
	text    string
	buttons []Button
}

type captureNotifier struct {
	notes []note
	err   error
}

func (c *captureNotifier) Notify(_ context.Context, userID int64, text string, buttons ...Button) error {
	c.notes = append(c.notes, note{userID: userID, text: text, buttons: buttons})
	return c.err
}

func newTestService(t *testing.T) (*Service, *repository.MemoryRepository, *captureNotifier) {
	t.Helper()

	repo := repository.NewMemoryRepository(3)
	cfg := &config.Config{
		Admins:       []int64{100},
		SuperAdmins:  []int64{200},
		DateCapacity: 3,
		HourCost:     150,
	}
	svc := NewService(repo, cfg, zap.NewNop())

	n := &captureNotifier{}
	svc.SetNotifier(n)

	return svc, repo, n
}

func TestAdjustPoints_BalanceIsSumOfDeltas(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.RegisterUser(ctx, 1, "Иванов Иван", model.RoleConsultant); err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}

	balance, err := svc.AdjustPoints(ctx, 100, 1, 50, "bonus", false, false)
	if err != nil {
		t.Fatalf("AdjustPoints error: %v", err)
	}
	if balance != 50 {
		t.Fatalf("balance = %d, want 50", balance)
	}

	balance, err = svc.AdjustPoints(ctx, 100, 1, 20, "correction", true, false)
	if err != nil {
		t.Fatalf("AdjustPoints error: %v", err)
	}
	if balance != 30 {
		t.Fatalf("balance = %d, want 30", balance)
	}

	history, err := svc.GetHistory(ctx, 1)
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history len = %d, want 2", len(history))
	}
	if history[0].Points != -20 || history[0].Reason != "correction" {
		t.Fatalf("newest record = %+v, want -20 correction", history[0])
	}
	if history[1].Points != 50 || history[1].Reason != "bonus" {
		t.Fatalf("oldest record = %+v, want +50 bonus", history[1])
	}
}

func TestAdjustPoints_SilentSkipsHistoryAndNotification(t *testing.T) {
	svc, _, n := newTestService(t)
	ctx := context.Background()

	if err := svc.RegisterUser(ctx, 1, "Иванов Иван", model.RoleConsultant); err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}

	balance, err := svc.AdjustPoints(ctx, 200, 1, 40, "перерасчёт", false, true)
	if err != nil {
		t.Fatalf("AdjustPoints error: %v", err)
	}
	if balance != 40 {
		t.Fatalf("balance = %d, want 40", balance)
	}

	history, _ := svc.GetHistory(ctx, 1)
	if len(history) != 0 {
		t.Fatalf("silent adjustment must not append history, got %d records", len(history))
	}
	if len(n.notes) != 0 {
		t.Fatalf("silent adjustment must not notify, got %d notifications", len(n.notes))
	}
}

func TestAdjustPoints_DeductionNormalizesSign(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.RegisterUser(ctx, 1, "Иванов Иван", model.RoleConsultant); err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}

	// Величина списания набирается администратором без знака, но может
	// прийти и отрицательной: в обоих случаях хранится неположительная дельта.
	for _, typed := range []int{25, -25} {
		balance, err := svc.AdjustPoints(ctx, 100, 1, typed, "ошибка в учёте", true, false)
		if err != nil {
			t.Fatalf("AdjustPoints(%d) error: %v", typed, err)
		}
		_ = balance
	}

	history, _ := svc.GetHistory(ctx, 1)
	if len(history) != 2 {
		t.Fatalf("history len = %d, want 2", len(history))
	}
	for _, rec := range history {
		if rec.Points != -25 {
			t.Fatalf("stored delta = %d, want -25", rec.Points)
		}
	}
}

func TestAdjustPoints_NotificationFailureDoesNotRollBack(t *testing.T) {
	svc, _, n := newTestService(t)
	n.err = errors.New("user blocked the bot")
	ctx := context.Background()

	if err := svc.RegisterUser(ctx, 1, "Иванов Иван", model.RoleConsultant); err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}

	balance, err := svc.AdjustPoints(ctx, 100, 1, 50, "bonus", false, false)
	if err != nil {
		t.Fatalf("AdjustPoints must not fail on notification error: %v", err)
	}
	if balance != 50 {
		t.Fatalf("balance = %d, want 50", balance)
	}

	u, err := svc.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("GetUser error: %v", err)
	}
	if u.Points != 50 {
		t.Fatalf("points = %d, want 50", u.Points)
	}
}

func TestSubmitRequest_InsufficientBalance(t *testing.T) {
	svc, _, n := newTestService(t)
	ctx := context.Background()

	if err := svc.RegisterUser(ctx, 1, "Иванов Иван", model.RoleConsultant); err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}
	if _, err := svc.AdjustPoints(ctx, 100, 1, 30, "bonus", false, false); err != nil {
		t.Fatalf("AdjustPoints error: %v", err)
	}
	n.notes = nil

	_, err := svc.SubmitRequest(ctx, 1, "Уйти на 3 часа раньше", model.CategoryOther, nil, 45)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	pending, _ := svc.PendingRequests(ctx)
	if len(pending) != 0 {
		t.Fatalf("no request must be created, got %d", len(pending))
	}

	u, _ := svc.GetUser(ctx, 1)
	if u.Points != 30 {
		t.Fatalf("balance changed to %d, want 30", u.Points)
	}
	if len(n.notes) != 0 {
		t.Fatalf("admins must not be notified, got %d notifications", len(n.notes))
	}
}

func TestSubmitRequest_NotifiesAdmins(t *testing.T) {
	svc, _, n := newTestService(t)
	ctx := context.Background()

	if err := svc.RegisterUser(ctx, 1, "Иванов Иван", model.RoleConsultant); err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}

	id, err := svc.SubmitRequest(ctx, 1, "Купить кофе", model.CategoryOther, nil, 0)
	if err != nil {
		t.Fatalf("SubmitRequest error: %v", err)
	}
	if id == 0 {
		t.Fatalf("request id must be assigned")
	}

	if len(n.notes) != 1 {
		t.Fatalf("admin notifications = %d, want 1", len(n.notes))
	}
	if n.notes[0].userID != 100 {
		t.Fatalf("notified %d, want admin 100", n.notes[0].userID)
	}
	if len(n.notes[0].buttons) != 2 {
		t.Fatalf("admin notification must carry decision buttons, got %d", len(n.notes[0].buttons))
	}
}

func TestDecide_SecondDecisionIsConflict(t *testing.T) {
	svc, _, n := newTestService(t)
	ctx := context.Background()

	if err := svc.RegisterUser(ctx, 1, "Иванов Иван", model.RoleConsultant); err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}
	id, err := svc.SubmitRequest(ctx, 1, "Купить кофе", model.CategoryOther, nil, 0)
	if err != nil {
		t.Fatalf("SubmitRequest error: %v", err)
	}
	n.notes = nil

	req, err := svc.Decide(ctx, 100, id, true)
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if req.Status != model.RequestStatusApproved {
		t.Fatalf("status = %s, want approved", req.Status)
	}
	if len(n.notes) != 1 || n.notes[0].userID != 1 {
		t.Fatalf("requester must be notified once, got %+v", n.notes)
	}

	_, err = svc.Decide(ctx, 100, id, false)
	if !errors.Is(err, repository.ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
	if len(n.notes) != 1 {
		t.Fatalf("second decision must not notify, got %d", len(n.notes))
	}

	got, _ := svc.ApprovedQueue(ctx, 10)
	if len(got) != 1 || got[0].Status != model.RequestStatusApproved {
		t.Fatalf("request must stay approved, got %+v", got)
	}
}

func TestDecide_RequiresAdmin(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Decide(ctx, 1, 1, true)
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestDateCapacity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	date := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 4; i++ {
		if err := svc.RegisterUser(ctx, i, "Сотрудник", model.RoleConsultant); err != nil {
			t.Fatalf("RegisterUser error: %v", err)
		}
		if _, err := svc.AdjustPoints(ctx, 100, i, 500, "bonus", false, true); err != nil {
			t.Fatalf("AdjustPoints error: %v", err)
		}
	}

	// Три одобренных заявки занимают дату, pending и rejected не считаются.
	for i := int64(1); i <= 3; i++ {
		id, err := svc.SubmitRequest(ctx, i, "Уйти на 1 час раньше", model.CategoryEarlyLeave, &date, 150)
		if err != nil {
			t.Fatalf("SubmitRequest error: %v", err)
		}
		if _, err := svc.Decide(ctx, 100, id, true); err != nil {
			t.Fatalf("Decide error: %v", err)
		}
	}

	ok, err := svc.IsDateAvailable(ctx, date, model.RoleConsultant)
	if err != nil {
		t.Fatalf("IsDateAvailable error: %v", err)
	}
	if ok {
		t.Fatalf("date must be unavailable at capacity")
	}

	// Другая роль не затронута лимитом.
	ok, err = svc.IsDateAvailable(ctx, date, model.RoleSupport)
	if err != nil {
		t.Fatalf("IsDateAvailable error: %v", err)
	}
	if !ok {
		t.Fatalf("capacity must be scoped by role")
	}

	_, err = svc.SubmitRequest(ctx, 4, "Уйти на 1 час раньше", model.CategoryEarlyLeave, &date, 150)
	if !errors.Is(err, repository.ErrDateUnavailable) {
		t.Fatalf("expected ErrDateUnavailable, got %v", err)
	}
}

func TestClearApproved(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.RegisterUser(ctx, 1, "Иванов Иван", model.RoleConsultant); err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}
	id, err := svc.SubmitRequest(ctx, 1, "Купить кофе", model.CategoryOther, nil, 0)
	if err != nil {
		t.Fatalf("SubmitRequest error: %v", err)
	}
	if _, err := svc.Decide(ctx, 100, id, true); err != nil {
		t.Fatalf("Decide error: %v", err)
	}

	if err := svc.ClearApproved(ctx); err != nil {
		t.Fatalf("ClearApproved error: %v", err)
	}

	queue, _ := svc.ApprovedQueue(ctx, 10)
	if len(queue) != 0 {
		t.Fatalf("approved queue must be empty, got %d", len(queue))
	}
}
