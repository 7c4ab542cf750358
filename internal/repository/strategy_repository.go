package repository

import (
	"context"
	"fmt"

	"tradecore/internal/models"
)

// StrategyRepository состояние стратегий губернатора.
// Наборы и журнал переходов меняются вместе, поэтому хранятся одним JSON-документом;
// режим продублирован колонкой для выборок.
type StrategyRepository struct {
	db *DB
}

// NewStrategyRepository создает новый экземпляр репозитория
func NewStrategyRepository(db *DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

// Save вставляет или заменяет состояние стратегии
func (r *StrategyRepository) Save(ctx context.Context, p *models.StrategyPerformance) error {
	state, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode strategy %s: %w", p.StrategyID, err)
	}

	query := `
		INSERT INTO strategies (strategy_id, current_mode, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (strategy_id) DO UPDATE SET
			current_mode = excluded.current_mode,
			state = excluded.state,
			updated_at = excluded.updated_at`

	_, err = r.db.exec(ctx, query, p.StrategyID, string(p.CurrentMode), string(state), p.UpdatedAt)
	return err
}

// GetAll все стратегии по ID
func (r *StrategyRepository) GetAll(ctx context.Context) ([]*models.StrategyPerformance, error) {
	rows, err := r.db.query(ctx, `SELECT strategy_id, state FROM strategies ORDER BY strategy_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.StrategyPerformance
	for rows.Next() {
		var id, state string
		if err := rows.Scan(&id, &state); err != nil {
			return nil, err
		}
		p := &models.StrategyPerformance{}
		if err := json.Unmarshal([]byte(state), p); err != nil {
			return nil, fmt.Errorf("decode strategy %s: %w", id, err)
		}
		p.StrategyID = id
		out = append(out, p)
	}
	return out, rows.Err()
}
