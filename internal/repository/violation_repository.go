package repository

import (
	"context"
	"database/sql"

	"tradecore/internal/models"
)

// ViolationRepository нарушения правил счетов
type ViolationRepository struct {
	db *DB
}

// NewViolationRepository создает новый экземпляр репозитория
func NewViolationRepository(db *DB) *ViolationRepository {
	return &ViolationRepository{db: db}
}

const violationColumns = `id, account_id, rule, severity, message, value, limit_value, flattened, detected_at, resolved_at`

// Save вставляет нарушение или обновляет его состояние (flatten, снятие)
func (r *ViolationRepository) Save(ctx context.Context, v *models.RuleViolation) error {
	query := `
		INSERT INTO violations (` + violationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			message = excluded.message,
			value = excluded.value,
			flattened = excluded.flattened,
			resolved_at = excluded.resolved_at`

	var resolved sql.NullTime
	if v.ResolvedAt != nil {
		resolved = sql.NullTime{Time: *v.ResolvedAt, Valid: true}
	}

	_, err := r.db.exec(ctx, query,
		v.ID,
		v.AccountID,
		v.Rule,
		v.Severity,
		v.Message,
		v.Value,
		v.Limit,
		v.Flattened,
		v.DetectedAt,
		resolved,
	)
	return err
}

// GetAll все нарушения в порядке обнаружения
func (r *ViolationRepository) GetAll(ctx context.Context) ([]*models.RuleViolation, error) {
	return r.list(ctx, `SELECT `+violationColumns+` FROM violations ORDER BY detected_at, id`)
}

func (r *ViolationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.RuleViolation, error) {
	rows, err := r.db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.RuleViolation
	for rows.Next() {
		v := &models.RuleViolation{}
		var resolved sql.NullTime
		if err := rows.Scan(
			&v.ID,
			&v.AccountID,
			&v.Rule,
			&v.Severity,
			&v.Message,
			&v.Value,
			&v.Limit,
			&v.Flattened,
			&v.DetectedAt,
			&resolved,
		); err != nil {
			return nil, err
		}
		if resolved.Valid {
			t := resolved.Time
			v.ResolvedAt = &t
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
