// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/staffpoints/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserNotFound возвращается, если сотрудник не найден.
var (
	ErrUserNotFound = errors.New("user not found")
	// ErrRequestNotFound возвращается, если заявка не найдена.
	ErrRequestNotFound = errors.New("request not found")
	// ErrAlreadyDecided возвращается при повторном решении по заявке.
	ErrAlreadyDecided = errors.New("request already decided")
	// ErrDateUnavailable возвращается, если лимит одобренных заявок на дату исчерпан.
	ErrDateUnavailable = errors.New("booking date is not available")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool         *pgxpool.Pool
	dateCapacity int
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
// dateCapacity задаёт лимит одобренных заявок раннего ухода на одну дату.
func NewPostgresRepository(dsn string, dateCapacity int) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, dateCapacity: dateCapacity}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// GetUser возвращает сотрудника по идентификатору.
func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, full_name, role, points FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.FullName, &u.Role, &u.Points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// CreateUser регистрирует сотрудника. Повторная регистрация того же
// идентификатора не является ошибкой и не меняет существующую запись.
func (r *PostgresRepository) CreateUser(ctx context.Context, id int64, fullName string, role model.Role) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, full_name, role, points) VALUES ($1, $2, $3, 0)
		 ON CONFLICT (id) DO NOTHING`,
		id, fullName, string(role),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// ListUsers возвращает список всех сотрудников.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, full_name, role, points FROM users`,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Role, &u.Points); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}

// DeleteUser удаляет сотрудника. Отсутствие записи не является ошибкой.
// Ссылки на удалённого сотрудника в истории и заявках сохраняются.
func (r *PostgresRepository) DeleteUser(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ApplyPoints атомарно изменяет баланс сотрудника и возвращает новый баланс.
// При silent = false в историю добавляется запись об операции.
// Строка сотрудника блокируется для сериализации параллельных изменений.
func (r *PostgresRepository) ApplyPoints(ctx context.Context, adminID, userID int64, delta int, reason string, silent bool) (int, error) {
	var balance int

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var dummy int
		err = tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user for update: %w", err)
		}

		err = tx.QueryRow(ctx,
			`UPDATE users SET points = points + $2 WHERE id = $1 RETURNING points`,
			userID, delta,
		).Scan(&balance)
		if err != nil {
			return fmt.Errorf("update points: %w", err)
		}

		if !silent {
			_, err = tx.Exec(ctx,
				`INSERT INTO history (admin_id, user_id, points, reason) VALUES ($1, $2, $3, $4)`,
				adminID, userID, delta, reason,
			)
			if err != nil {
				return fmt.Errorf("insert history: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return balance, nil
}

// GetHistory возвращает историю операций сотрудника, новые записи первыми.
func (r *PostgresRepository) GetHistory(ctx context.Context, userID int64) ([]model.HistoryRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, admin_id, user_id, points, reason, recorded_at
		 FROM history
		 WHERE user_id = $1
		 ORDER BY recorded_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	var res []model.HistoryRecord
	for rows.Next() {
		var rec model.HistoryRecord
		if err := rows.Scan(&rec.ID, &rec.AdminID, &rec.UserID, &rec.Points, &rec.Reason, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func (r *PostgresRepository) countApprovedOnDate(ctx context.Context, tx pgx.Tx, date time.Time, role model.Role) (int, error) {
	var count int
	err := tx.QueryRow(ctx,
		`SELECT count(*)
		 FROM usage_requests r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.status = $1 AND r.category = $2 AND r.booking_date = $3 AND u.role = $4`,
		string(model.RequestStatusApproved), string(model.CategoryEarlyLeave),
		date, string(role),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count approved on date: %w", err)
	}
	return count, nil
}

// CreateRequest создаёт заявку на использование баллов и возвращает её идентификатор.
// Для заявок с датой доступность даты повторно проверяется в той же транзакции,
// что закрывает гонку между показом календаря и подтверждением.
func (r *PostgresRepository) CreateRequest(ctx context.Context, userID int64, description string, category model.RequestCategory, bookingDate *time.Time) (int64, error) {
	var id int64

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var role model.Role
		err = tx.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("select requester role: %w", err)
		}

		if bookingDate != nil && category == model.CategoryEarlyLeave {
			count, err := r.countApprovedOnDate(ctx, tx, *bookingDate, role)
			if err != nil {
				return err
			}
			if count >= r.dateCapacity {
				return ErrDateUnavailable
			}
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO usage_requests (user_id, description, category, booking_date)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			userID, description, string(category), bookingDate,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert request: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// GetRequest возвращает заявку по идентификатору.
func (r *PostgresRepository) GetRequest(ctx context.Context, id int64) (*model.UsageRequest, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, description, status, category, created_at, booking_date
		 FROM usage_requests WHERE id = $1`,
		id,
	)

	var req model.UsageRequest
	err := row.Scan(&req.ID, &req.UserID, &req.Description, &req.Status, &req.Category, &req.CreatedAt, &req.BookingDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("get request: %w", err)
	}

	return &req, nil
}

func scanRequestViews(rows pgx.Rows) ([]model.RequestView, error) {
	defer rows.Close()

	var res []model.RequestView
	for rows.Next() {
		var v model.RequestView
		if err := rows.Scan(&v.ID, &v.UserID, &v.Description, &v.Status, &v.Category, &v.CreatedAt, &v.BookingDate, &v.FullName); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		res = append(res, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListPending возвращает заявки на рассмотрении, старые первыми (порядок FIFO).
func (r *PostgresRepository) ListPending(ctx context.Context) ([]model.RequestView, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.user_id, r.description, r.status, r.category, r.created_at, r.booking_date,
		        COALESCE(u.full_name, 'Неизвестный')
		 FROM usage_requests r
		 LEFT JOIN users u ON u.id = r.user_id
		 WHERE r.status = $1
		 ORDER BY r.created_at, r.id`,
		string(model.RequestStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("select pending requests: %w", err)
	}

	return scanRequestViews(rows)
}

// ListApproved возвращает последние одобренные заявки, новые первыми.
func (r *PostgresRepository) ListApproved(ctx context.Context, limit int) ([]model.RequestView, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.user_id, r.description, r.status, r.category, r.created_at, r.booking_date,
		        COALESCE(u.full_name, 'Неизвестный')
		 FROM usage_requests r
		 LEFT JOIN users u ON u.id = r.user_id
		 WHERE r.status = $1
		 ORDER BY r.created_at DESC, r.id DESC
		 LIMIT $2`,
		string(model.RequestStatusApproved), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select approved requests: %w", err)
	}

	return scanRequestViews(rows)
}

// SetStatus переводит заявку из pending в указанный терминальный статус.
// Повторное решение возвращает ErrAlreadyDecided и не меняет запись.
// При одобрении заявки с датой лимит на дату проверяется в той же транзакции.
func (r *PostgresRepository) SetStatus(ctx context.Context, id int64, status model.RequestStatus) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var req model.UsageRequest
		err = tx.QueryRow(ctx,
			`SELECT id, user_id, status, category, booking_date
			 FROM usage_requests WHERE id = $1 FOR UPDATE`,
			id,
		).Scan(&req.ID, &req.UserID, &req.Status, &req.Category, &req.BookingDate)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrRequestNotFound
			}
			return fmt.Errorf("lock request for update: %w", err)
		}

		if req.Status != model.RequestStatusPending {
			return ErrAlreadyDecided
		}

		if status == model.RequestStatusApproved && req.BookingDate != nil && req.Category == model.CategoryEarlyLeave {
			var role model.Role
			err = tx.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, req.UserID).Scan(&role)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("select requester role: %w", err)
			}
			if err == nil {
				count, err := r.countApprovedOnDate(ctx, tx, *req.BookingDate, role)
				if err != nil {
					return err
				}
				if count >= r.dateCapacity {
					return ErrDateUnavailable
				}
			}
		}

		_, err = tx.Exec(ctx,
			`UPDATE usage_requests SET status = $2 WHERE id = $1`,
			id, string(status),
		)
		if err != nil {
			return fmt.Errorf("update request status: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// IsDateAvailable сообщает, не исчерпан ли лимит одобренных заявок раннего
// ухода на указанную дату для сотрудников указанной роли.
func (r *PostgresRepository) IsDateAvailable(ctx context.Context, date time.Time, role model.Role) (bool, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*)
		 FROM usage_requests r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.status = $1 AND r.category = $2 AND r.booking_date = $3 AND u.role = $4`,
		string(model.RequestStatusApproved), string(model.CategoryEarlyLeave),
		date, string(role),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count approved on date: %w", err)
	}

	return count < r.dateCapacity, nil
}

// ClearApproved удаляет все одобренные заявки. Операция необратима.
func (r *PostgresRepository) ClearApproved(ctx context.Context) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM usage_requests WHERE status = $1`,
		string(model.RequestStatusApproved),
	)
	if err != nil {
		return fmt.Errorf("clear approved requests: %w", err)
	}
	return nil
}
