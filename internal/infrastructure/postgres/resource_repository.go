package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-space-reservation/internal/domain/resource"
	"github.com/sanosuguru/go-space-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/accesscode"
)

type resourceRow struct {
	ID                         string         `db:"id"`
	UnitID                     string         `db:"unit_id"`
	Type                       string         `db:"type"`
	NameFi                     sql.NullString `db:"name_fi"`
	NameSv                     sql.NullString `db:"name_sv"`
	NameEn                     sql.NullString `db:"name_en"`
	Reservable                 bool           `db:"reservable"`
	Public                     bool           `db:"public"`
	MinPeriodSeconds           int64          `db:"min_period_seconds"`
	MaxPeriodSeconds           *int64         `db:"max_period_seconds"`
	SlotSizeSeconds            int64          `db:"slot_size_seconds"`
	MaxReservationsPerUser     *int           `db:"max_reservations_per_user"`
	ReservableMaxDaysInAdvance *int           `db:"reservable_max_days_in_advance"`
	ReservableMinDaysInAdvance *int           `db:"reservable_min_days_in_advance"`
	AccessCodeType             string         `db:"access_code_type"`
	NeedManualConfirmation     bool           `db:"need_manual_confirmation"`
	MetadataSetID              *string        `db:"metadata_set_id"`
	MinPrice                   *int           `db:"min_price"`
	MaxPrice                   *int           `db:"max_price"`
	Authentication             string         `db:"authentication"`
	CreatedAt                  time.Time      `db:"created_at"`
	ModifiedAt                 time.Time      `db:"modified_at"`
}

const resourceColumns = `id, unit_id, type, name_fi, name_sv, name_en, reservable, public, min_period_seconds, max_period_seconds, slot_size_seconds, max_reservations_per_user, reservable_max_days_in_advance, reservable_min_days_in_advance, access_code_type, need_manual_confirmation, metadata_set_id, min_price, max_price, authentication, created_at, modified_at`

type ResourceRepository struct{ db *sqlx.DB }

func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) GetByID(ctx context.Context, id string) (*resource.Resource, error) {
	var row resourceRow
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, resource.ErrResourceNotFound
		}
		return nil, fmt.Errorf("リソース取得に失敗: %w", err)
	}
	return r.hydrate(ctx, &row)
}

func (r *ResourceRepository) Create(ctx context.Context, res *resource.Resource) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	var maxPeriod *int64
	if res.MaxPeriod != nil {
		v := int64(res.MaxPeriod.Seconds())
		maxPeriod = &v
	}
	query := `INSERT INTO resources (id, unit_id, type, name_fi, name_sv, name_en, reservable, public, min_period_seconds, max_period_seconds, slot_size_seconds, max_reservations_per_user, reservable_max_days_in_advance, reservable_min_days_in_advance, access_code_type, need_manual_confirmation, metadata_set_id, min_price, max_price, authentication, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	if _, err := r.db.ExecContext(ctx, query,
		res.ID, res.UnitID, string(res.Type),
		res.Name["fi"], res.Name["sv"], res.Name["en"],
		res.Reservable, res.Public,
		int64(res.MinPeriod.Seconds()), maxPeriod, int64(res.SlotSize.Seconds()),
		res.MaxReservationsPerUser,
		res.ReservableMaxDaysInAdvance, res.ReservableMinDaysInAdvance,
		string(res.AccessCodeType), res.NeedManualConfirmation, res.MetadataSetID,
		res.MinPrice, res.MaxPrice, string(res.Authentication),
		res.CreatedAt, res.ModifiedAt); err != nil {
		return fmt.Errorf("リソース作成に失敗: %w", err)
	}
	if err := r.saveLinks(ctx, res); err != nil {
		return err
	}
	return nil
}

// LockForUpdate はリソース行の排他ロックを取得する
// 同一リソースへの競合ミューテーションの直列化ポイント
func (r *ResourceRepository) LockForUpdate(ctx context.Context, tx transaction.Tx, id string) error {
	sqlxTx := UnwrapTx(tx)
	if sqlxTx == nil {
		return errors.New("トランザクションがPostgreSQL実装ではありません")
	}
	var locked string
	if err := sqlxTx.GetContext(ctx, &locked, `SELECT id FROM resources WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return resource.ErrResourceNotFound
		}
		return fmt.Errorf("リソースロック取得に失敗: %w", err)
	}
	return nil
}

func (r *ResourceRepository) ListByUnit(ctx context.Context, unitID string) ([]*resource.Resource, error) {
	var rows []resourceRow
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE unit_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query, unitID); err != nil {
		return nil, fmt.Errorf("リソース一覧取得に失敗: %w", err)
	}
	return r.hydrateAll(ctx, rows)
}

func (r *ResourceRepository) List(ctx context.Context, limit, offset int) ([]*resource.Resource, error) {
	var rows []resourceRow
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE public = TRUE ORDER BY id LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("リソース一覧取得に失敗: %w", err)
	}
	return r.hydrateAll(ctx, rows)
}

func (r *ResourceRepository) hydrateAll(ctx context.Context, rows []resourceRow) ([]*resource.Resource, error) {
	result := make([]*resource.Resource, 0, len(rows))
	for i := range rows {
		res, err := r.hydrate(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, res)
	}
	return result, nil
}

// hydrate は関連テーブル（目的・設備・リソースグループ）を読み込んでエンティティ化する
func (r *ResourceRepository) hydrate(ctx context.Context, row *resourceRow) (*resource.Resource, error) {
	purposes, err := r.linkedIDs(ctx, `SELECT purpose_id FROM resource_purposes WHERE resource_id = $1`, row.ID)
	if err != nil {
		return nil, err
	}
	equipment, err := r.linkedIDs(ctx, `SELECT equipment_id FROM resource_equipment WHERE resource_id = $1`, row.ID)
	if err != nil {
		return nil, err
	}
	groups, err := r.linkedIDs(ctx, `SELECT resource_group_id FROM resource_group_members WHERE resource_id = $1`, row.ID)
	if err != nil {
		return nil, err
	}
	return toResourceEntity(row, purposes, equipment, groups), nil
}

func (r *ResourceRepository) linkedIDs(ctx context.Context, query, resourceID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, resourceID); err != nil {
		return nil, fmt.Errorf("リソース関連付けの取得に失敗: %w", err)
	}
	return ids, nil
}

func (r *ResourceRepository) saveLinks(ctx context.Context, res *resource.Resource) error {
	for _, id := range res.PurposeIDs {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO resource_purposes (resource_id, purpose_id) VALUES ($1, $2)`, res.ID, id); err != nil {
			return fmt.Errorf("リソース目的の関連付けに失敗: %w", err)
		}
	}
	for _, id := range res.EquipmentIDs {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO resource_equipment (resource_id, equipment_id) VALUES ($1, $2)`, res.ID, id); err != nil {
			return fmt.Errorf("リソース設備の関連付けに失敗: %w", err)
		}
	}
	for _, id := range res.ResourceGroupIDs {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO resource_group_members (resource_group_id, resource_id) VALUES ($1, $2)`, id, res.ID); err != nil {
			return fmt.Errorf("リソースグループの関連付けに失敗: %w", err)
		}
	}
	return nil
}

func toResourceEntity(row *resourceRow, purposes, equipment, groups []string) *resource.Resource {
	res := &resource.Resource{
		ID:                         row.ID,
		UnitID:                     row.UnitID,
		Type:                       resource.MainType(row.Type),
		Name:                       langMap(row.NameFi, row.NameSv, row.NameEn),
		Reservable:                 row.Reservable,
		Public:                     row.Public,
		MinPeriod:                  time.Duration(row.MinPeriodSeconds) * time.Second,
		SlotSize:                   time.Duration(row.SlotSizeSeconds) * time.Second,
		MaxReservationsPerUser:     row.MaxReservationsPerUser,
		ReservableMaxDaysInAdvance: row.ReservableMaxDaysInAdvance,
		ReservableMinDaysInAdvance: row.ReservableMinDaysInAdvance,
		AccessCodeType:             accesscode.Type(row.AccessCodeType),
		NeedManualConfirmation:     row.NeedManualConfirmation,
		MetadataSetID:              row.MetadataSetID,
		MinPrice:                   row.MinPrice,
		MaxPrice:                   row.MaxPrice,
		Authentication:             resource.Authentication(row.Authentication),
		PurposeIDs:                 purposes,
		EquipmentIDs:               equipment,
		ResourceGroupIDs:           groups,
		CreatedAt:                  row.CreatedAt,
		ModifiedAt:                 row.ModifiedAt,
	}
	if row.MaxPeriodSeconds != nil {
		d := time.Duration(*row.MaxPeriodSeconds) * time.Second
		res.MaxPeriod = &d
	}
	return res
}

var _ resource.Repository = (*ResourceRepository)(nil)
