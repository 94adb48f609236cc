package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository provides audit trail and operator persistence
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateEntry records a verification decision
func (r *Repository) CreateEntry(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO audit_entries (
			id, request_id, request_kind, action, outcome, operator_id,
			user_id, account_type, requested_amount, verified_amount,
			rejection_reason, balance_before, balance_after, overdraw_warned, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.RequestKind,
		entry.Action,
		entry.Outcome,
		entry.OperatorID,
		entry.UserID,
		entry.AccountType,
		entry.RequestedAmount,
		entry.VerifiedAmount,
		entry.RejectionReason,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.OverdrawWarned,
		entry.Note,
	).Scan(&entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	return nil
}

// ListByRequest returns all entries for one payment request, oldest first
func (r *Repository) ListByRequest(ctx context.Context, requestID string) ([]Entry, error) {
	query := selectEntries + ` WHERE request_id = $1 ORDER BY created_at ASC`
	return r.queryEntries(ctx, query, requestID)
}

// ListByOperator returns recent entries recorded by one operator
func (r *Repository) ListByOperator(ctx context.Context, operatorID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectEntries + ` WHERE operator_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.queryEntries(ctx, query, operatorID, limit)
}

// ListRecent returns the most recent entries across all operators
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectEntries + ` ORDER BY created_at DESC LIMIT $1`
	return r.queryEntries(ctx, query, limit)
}

const selectEntries = `
	SELECT id, request_id, request_kind, action, outcome, operator_id,
		user_id, account_type, requested_amount, verified_amount,
		rejection_reason, balance_before, balance_after, overdraw_warned,
		note, created_at
	FROM audit_entries`

func (r *Repository) queryEntries(ctx context.Context, query string, args ...interface{}) ([]Entry, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID, &e.RequestID, &e.RequestKind, &e.Action, &e.Outcome,
			&e.OperatorID, &e.UserID, &e.AccountType, &e.RequestedAmount,
			&e.VerifiedAmount, &e.RejectionReason, &e.BalanceBefore,
			&e.BalanceAfter, &e.OverdrawWarned, &e.Note, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// CreateOperator creates a back-office operator account
func (r *Repository) CreateOperator(ctx context.Context, op *Operator) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}

	query := `
		INSERT INTO operators (id, email, password_hash, name, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		op.ID, op.Email, op.PasswordHash, op.Name, op.IsAdmin,
	).Scan(&op.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create operator: %w", err)
	}

	return nil
}

// GetOperatorByEmail retrieves an operator by email; nil when not found
func (r *Repository) GetOperatorByEmail(ctx context.Context, email string) (*Operator, error) {
	query := `
		SELECT id, email, password_hash, name, is_admin, created_at, last_login_at
		FROM operators WHERE email = $1
	`

	op := &Operator{}
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(
		&op.ID, &op.Email, &op.PasswordHash, &op.Name, &op.IsAdmin,
		&op.CreatedAt, &op.LastLoginAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}

	return op, nil
}

// GetOperatorByID retrieves an operator by id; nil when not found
func (r *Repository) GetOperatorByID(ctx context.Context, id string) (*Operator, error) {
	query := `
		SELECT id, email, password_hash, name, is_admin, created_at, last_login_at
		FROM operators WHERE id = $1
	`

	op := &Operator{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&op.ID, &op.Email, &op.PasswordHash, &op.Name, &op.IsAdmin,
		&op.CreatedAt, &op.LastLoginAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator: %w", err)
	}

	return op, nil
}

// ListOperators returns all operator accounts
func (r *Repository) ListOperators(ctx context.Context) ([]Operator, error) {
	query := `
		SELECT id, email, password_hash, name, is_admin, created_at, last_login_at
		FROM operators ORDER BY created_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list operators: %w", err)
	}
	defer rows.Close()

	var operators []Operator
	for rows.Next() {
		var op Operator
		err := rows.Scan(&op.ID, &op.Email, &op.PasswordHash, &op.Name,
			&op.IsAdmin, &op.CreatedAt, &op.LastLoginAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operator: %w", err)
		}
		operators = append(operators, op)
	}

	return operators, rows.Err()
}

// TouchOperatorLogin records a successful login time
func (r *Repository) TouchOperatorLogin(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE operators SET last_login_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to update operator login time: %w", err)
	}
	return nil
}
