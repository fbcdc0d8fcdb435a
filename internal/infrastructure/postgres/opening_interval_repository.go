package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-space-reservation/internal/domain/opening"
	"github.com/sanosuguru/go-space-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

type openingIntervalRow struct {
	ResourceID string    `db:"resource_id"`
	Date       time.Time `db:"date"`
	OpensUTC   time.Time `db:"opens_utc"`
	ClosesUTC  time.Time `db:"closes_utc"`
}

type OpeningIntervalRepository struct{ db *sqlx.DB }

func NewOpeningIntervalRepository(db *sqlx.DB) *OpeningIntervalRepository {
	return &OpeningIntervalRepository{db: db}
}

func (r *OpeningIntervalRepository) ListForRange(ctx context.Context, resourceID string, from, to timeutil.Date) ([]opening.Interval, error) {
	var rows []openingIntervalRow
	query := `SELECT resource_id, date, opens_utc, closes_utc FROM opening_intervals
		WHERE resource_id = $1 AND date >= $2 AND date <= $3 ORDER BY date, opens_utc`
	if err := r.db.SelectContext(ctx, &rows, query,
		resourceID, from.Time(time.UTC), to.Time(time.UTC)); err != nil {
		return nil, fmt.Errorf("開館インターバル取得に失敗: %w", err)
	}
	return toIntervals(rows), nil
}

func (r *OpeningIntervalRepository) ListAll(ctx context.Context, tx transaction.Tx, resourceID string) ([]opening.Interval, error) {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return nil, errTxRequired
	}
	var rows []openingIntervalRow
	query := `SELECT resource_id, date, opens_utc, closes_utc FROM opening_intervals
		WHERE resource_id = $1 ORDER BY date, opens_utc`
	if err := sqlxTx.SelectContext(ctx, &rows, query, resourceID); err != nil {
		return nil, fmt.Errorf("開館インターバル取得に失敗: %w", err)
	}
	return toIntervals(rows), nil
}

// ApplyDiff は再計算の差分だけを適用する
// 一致行には触れないため、同じ入力に対して冪等
func (r *OpeningIntervalRepository) ApplyDiff(ctx context.Context, tx transaction.Tx, resourceID string, toDelete, toInsert []opening.Interval) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errTxRequired
	}
	for _, iv := range toDelete {
		if _, err := sqlxTx.ExecContext(ctx,
			`DELETE FROM opening_intervals WHERE resource_id = $1 AND date = $2 AND opens_utc = $3 AND closes_utc = $4`,
			resourceID, iv.Date.Time(time.UTC), iv.OpensUTC, iv.ClosesUTC); err != nil {
			return fmt.Errorf("開館インターバル削除に失敗: %w", err)
		}
	}
	for _, iv := range toInsert {
		if _, err := sqlxTx.ExecContext(ctx,
			`INSERT INTO opening_intervals (resource_id, date, opens_utc, closes_utc) VALUES ($1, $2, $3, $4)`,
			resourceID, iv.Date.Time(time.UTC), iv.OpensUTC, iv.ClosesUTC); err != nil {
			return fmt.Errorf("開館インターバル作成に失敗: %w", err)
		}
	}
	return nil
}

func toIntervals(rows []openingIntervalRow) []opening.Interval {
	result := make([]opening.Interval, len(rows))
	for i, row := range rows {
		result[i] = opening.Interval{
			ResourceID: row.ResourceID,
			Date:       timeutil.DateOf(row.Date, time.UTC),
			OpensUTC:   row.OpensUTC,
			ClosesUTC:  row.ClosesUTC,
		}
	}
	return result
}

var _ opening.IntervalRepository = (*OpeningIntervalRepository)(nil)
