package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-space-reservation/internal/domain/unit"
)

type unitRow struct {
	ID                         string         `db:"id"`
	NameFi                     sql.NullString `db:"name_fi"`
	NameSv                     sql.NullString `db:"name_sv"`
	NameEn                     sql.NullString `db:"name_en"`
	TimeZone                   string         `db:"time_zone"`
	StreetAddress              sql.NullString `db:"street_address"`
	AddressZip                 sql.NullString `db:"address_zip"`
	Municipality               sql.NullString `db:"municipality"`
	Lon                        *float64       `db:"lon"`
	Lat                        *float64       `db:"lat"`
	ReservableMaxDaysInAdvance *int           `db:"reservable_max_days_in_advance"`
	ReservableMinDaysInAdvance *int           `db:"reservable_min_days_in_advance"`
	CreatedAt                  time.Time      `db:"created_at"`
	ModifiedAt                 time.Time      `db:"modified_at"`
}

const unitColumns = `id, name_fi, name_sv, name_en, time_zone, street_address, address_zip, municipality, lon, lat, reservable_max_days_in_advance, reservable_min_days_in_advance, created_at, modified_at`

type UnitRepository struct{ db *sqlx.DB }

func NewUnitRepository(db *sqlx.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

func (r *UnitRepository) GetByID(ctx context.Context, id string) (*unit.Unit, error) {
	var row unitRow
	query := `SELECT ` + unitColumns + ` FROM units WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, unit.ErrUnitNotFound
		}
		return nil, fmt.Errorf("ユニット取得に失敗: %w", err)
	}
	return toUnitEntity(&row), nil
}

func (r *UnitRepository) Create(ctx context.Context, u *unit.Unit) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	var lon, lat *float64
	if u.Coordinates != nil {
		lon, lat = &u.Coordinates.Lon, &u.Coordinates.Lat
	}
	query := `INSERT INTO units (id, name_fi, name_sv, name_en, time_zone, street_address, address_zip, municipality, lon, lat, reservable_max_days_in_advance, reservable_min_days_in_advance, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	if _, err := r.db.ExecContext(ctx, query,
		u.ID, u.Name["fi"], u.Name["sv"], u.Name["en"], u.TimeZone,
		u.StreetAddress, u.AddressZip, u.Municipality, lon, lat,
		u.ReservableMaxDaysInAdvance, u.ReservableMinDaysInAdvance,
		u.CreatedAt, u.ModifiedAt); err != nil {
		return fmt.Errorf("ユニット作成に失敗: %w", err)
	}
	return nil
}

// Delete はユニットを削除する
// リソースからの保護参照（外部キー）に当たった場合は ErrUnitProtected
func (r *UnitRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM units WHERE id = $1`, id)
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23503" {
			return unit.ErrUnitProtected
		}
		return fmt.Errorf("ユニット削除に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return unit.ErrUnitNotFound
	}
	return nil
}

func (r *UnitRepository) GetGroupsContaining(ctx context.Context, unitID string) ([]*unit.UnitGroup, error) {
	var groupIDs []string
	if err := r.db.SelectContext(ctx, &groupIDs,
		`SELECT unit_group_id FROM unit_group_members WHERE unit_id = $1`, unitID); err != nil {
		return nil, fmt.Errorf("ユニットグループ取得に失敗: %w", err)
	}
	groups := make([]*unit.UnitGroup, 0, len(groupIDs))
	for _, groupID := range groupIDs {
		var name string
		if err := r.db.GetContext(ctx, &name, `SELECT name FROM unit_groups WHERE id = $1`, groupID); err != nil {
			return nil, fmt.Errorf("ユニットグループ取得に失敗: %w", err)
		}
		var memberIDs []string
		if err := r.db.SelectContext(ctx, &memberIDs,
			`SELECT unit_id FROM unit_group_members WHERE unit_group_id = $1`, groupID); err != nil {
			return nil, fmt.Errorf("ユニットグループ所属の取得に失敗: %w", err)
		}
		groups = append(groups, &unit.UnitGroup{ID: groupID, Name: name, MemberIDs: memberIDs})
	}
	return groups, nil
}

func toUnitEntity(row *unitRow) *unit.Unit {
	u := &unit.Unit{
		ID:                         row.ID,
		Name:                       langMap(row.NameFi, row.NameSv, row.NameEn),
		TimeZone:                   row.TimeZone,
		StreetAddress:              row.StreetAddress.String,
		AddressZip:                 row.AddressZip.String,
		Municipality:               row.Municipality.String,
		ReservableMaxDaysInAdvance: row.ReservableMaxDaysInAdvance,
		ReservableMinDaysInAdvance: row.ReservableMinDaysInAdvance,
		CreatedAt:                  row.CreatedAt,
		ModifiedAt:                 row.ModifiedAt,
	}
	if row.Lon != nil && row.Lat != nil {
		u.Coordinates = &unit.Point{Lon: *row.Lon, Lat: *row.Lat}
	}
	return u
}

// langMap はfi/sv/en列を言語マップに変換する（空値は含めない）
func langMap(fi, sv, en sql.NullString) map[string]string {
	m := make(map[string]string, 3)
	if fi.String != "" {
		m["fi"] = fi.String
	}
	if sv.String != "" {
		m["sv"] = sv.String
	}
	if en.String != "" {
		m["en"] = en.String
	}
	return m
}

var _ unit.Repository = (*UnitRepository)(nil)
