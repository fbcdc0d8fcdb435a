package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-space-reservation/internal/domain/opening"
	"github.com/sanosuguru/go-space-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

type periodRow struct {
	ID         string    `db:"id"`
	ResourceID *string   `db:"resource_id"`
	UnitID     *string   `db:"unit_id"`
	StartDate  time.Time `db:"start_date"`
	EndDate    time.Time `db:"end_date"`
	Name       string    `db:"name"`
	Closed     bool      `db:"closed"`
	CreatedAt  time.Time `db:"created_at"`
	ModifiedAt time.Time `db:"modified_at"`
}

type periodDayRow struct {
	PeriodID string  `db:"period_id"`
	Weekday  int     `db:"weekday"`
	Opens    *string `db:"opens"`
	Closes   *string `db:"closes"`
	Closed   bool    `db:"closed"`
}

const periodColumns = `id, resource_id, unit_id, start_date, end_date, name, closed, created_at, modified_at`

type PeriodRepository struct{ db *sqlx.DB }

func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

func (r *PeriodRepository) GetByID(ctx context.Context, id string) (*opening.Period, error) {
	var row periodRow
	query := `SELECT ` + periodColumns + ` FROM periods WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, opening.ErrPeriodNotFound
		}
		return nil, fmt.Errorf("期間取得に失敗: %w", err)
	}
	return r.hydrate(ctx, &row)
}

func (r *PeriodRepository) ListForResource(ctx context.Context, resourceID string) ([]*opening.Period, error) {
	return r.list(ctx, `SELECT `+periodColumns+` FROM periods WHERE resource_id = $1 ORDER BY start_date`, resourceID)
}

func (r *PeriodRepository) ListForUnit(ctx context.Context, unitID string) ([]*opening.Period, error) {
	return r.list(ctx, `SELECT `+periodColumns+` FROM periods WHERE unit_id = $1 ORDER BY start_date`, unitID)
}

func (r *PeriodRepository) list(ctx context.Context, query, ownerID string) ([]*opening.Period, error) {
	var rows []periodRow
	if err := r.db.SelectContext(ctx, &rows, query, ownerID); err != nil {
		return nil, fmt.Errorf("期間一覧取得に失敗: %w", err)
	}
	result := make([]*opening.Period, 0, len(rows))
	for i := range rows {
		p, err := r.hydrate(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (r *PeriodRepository) Create(ctx context.Context, tx transaction.Tx, p *opening.Period) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errTxRequired
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `INSERT INTO periods (id, resource_id, unit_id, start_date, end_date, name, closed, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := sqlxTx.ExecContext(ctx, query,
		p.ID, p.ResourceID, p.UnitID,
		p.Start.Time(time.UTC), p.End.Time(time.UTC),
		p.Name, p.Closed, p.CreatedAt, p.ModifiedAt); err != nil {
		return fmt.Errorf("期間作成に失敗: %w", err)
	}
	return r.insertDays(ctx, sqlxTx, p)
}

func (r *PeriodRepository) Update(ctx context.Context, tx transaction.Tx, p *opening.Period) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errTxRequired
	}
	query := `UPDATE periods SET resource_id = $2, unit_id = $3, start_date = $4, end_date = $5, name = $6, closed = $7, modified_at = $8 WHERE id = $1`
	result, err := sqlxTx.ExecContext(ctx, query,
		p.ID, p.ResourceID, p.UnitID,
		p.Start.Time(time.UTC), p.End.Time(time.UTC),
		p.Name, p.Closed, p.ModifiedAt)
	if err != nil {
		return fmt.Errorf("期間更新に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return opening.ErrPeriodNotFound
	}
	// 曜日定義は置き換え
	if _, err := sqlxTx.ExecContext(ctx, `DELETE FROM period_days WHERE period_id = $1`, p.ID); err != nil {
		return fmt.Errorf("曜日定義の削除に失敗: %w", err)
	}
	return r.insertDays(ctx, sqlxTx, p)
}

func (r *PeriodRepository) Delete(ctx context.Context, tx transaction.Tx, id string) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errTxRequired
	}
	result, err := sqlxTx.ExecContext(ctx, `DELETE FROM periods WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("期間削除に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return opening.ErrPeriodNotFound
	}
	return nil
}

func (r *PeriodRepository) insertDays(ctx context.Context, tx *sqlx.Tx, p *opening.Period) error {
	for _, d := range p.Days {
		var opens, closes *string
		if d.Opens != nil {
			v := d.Opens.String()
			opens = &v
		}
		if d.Closes != nil {
			v := d.Closes.String()
			closes = &v
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO period_days (period_id, weekday, opens, closes, closed) VALUES ($1, $2, $3, $4, $5)`,
			p.ID, d.Weekday, opens, closes, d.Closed); err != nil {
			return fmt.Errorf("曜日定義の作成に失敗: %w", err)
		}
	}
	return nil
}

func (r *PeriodRepository) hydrate(ctx context.Context, row *periodRow) (*opening.Period, error) {
	var dayRows []periodDayRow
	if err := r.db.SelectContext(ctx, &dayRows,
		`SELECT period_id, weekday, opens, closes, closed FROM period_days WHERE period_id = $1 ORDER BY weekday`, row.ID); err != nil {
		return nil, fmt.Errorf("曜日定義の取得に失敗: %w", err)
	}
	days := make([]opening.Day, 0, len(dayRows))
	for _, dr := range dayRows {
		day := opening.Day{Weekday: dr.Weekday, Closed: dr.Closed}
		if dr.Opens != nil {
			td, err := parseDBTime(*dr.Opens)
			if err != nil {
				return nil, err
			}
			day.Opens = &td
		}
		if dr.Closes != nil {
			td, err := parseDBTime(*dr.Closes)
			if err != nil {
				return nil, err
			}
			day.Closes = &td
		}
		days = append(days, day)
	}
	return &opening.Period{
		ID:         row.ID,
		ResourceID: row.ResourceID,
		UnitID:     row.UnitID,
		Start:      timeutil.DateOf(row.StartDate, time.UTC),
		End:        timeutil.DateOf(row.EndDate, time.UTC),
		Name:       row.Name,
		Closed:     row.Closed,
		Days:       days,
		CreatedAt:  row.CreatedAt,
		ModifiedAt: row.ModifiedAt,
	}, nil
}

// parseDBTime はtime列の文字列表現（"15:04" または "15:04:05"）を解釈する
func parseDBTime(s string) (timeutil.TimeOfDay, error) {
	if len(s) >= 5 {
		s = s[:5]
	}
	td, err := timeutil.ParseTimeOfDay(s)
	if err != nil {
		return timeutil.TimeOfDay{}, fmt.Errorf("時刻列の解釈に失敗: %w", err)
	}
	return td, nil
}

var _ opening.PeriodRepository = (*PeriodRepository)(nil)
