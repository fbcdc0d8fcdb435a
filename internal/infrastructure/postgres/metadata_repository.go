package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-space-reservation/internal/domain/reservation"
)

type metadataFieldRow struct {
	Field    string `db:"field"`
	Required bool   `db:"required"`
}

type MetadataRepository struct{ db *sqlx.DB }

func NewMetadataRepository(db *sqlx.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

func (r *MetadataRepository) GetSetByID(ctx context.Context, id string) (*reservation.MetadataSet, error) {
	var name string
	if err := r.db.GetContext(ctx, &name, `SELECT name FROM metadata_sets WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reservation.ErrMetadataSetNotFound
		}
		return nil, fmt.Errorf("メタデータセット取得に失敗: %w", err)
	}
	var fields []metadataFieldRow
	if err := r.db.SelectContext(ctx, &fields,
		`SELECT field, required FROM metadata_set_fields WHERE metadata_set_id = $1 ORDER BY field`, id); err != nil {
		return nil, fmt.Errorf("メタデータフィールド取得に失敗: %w", err)
	}
	set := &reservation.MetadataSet{ID: id, Name: name}
	for _, f := range fields {
		set.Supported = append(set.Supported, f.Field)
		if f.Required {
			set.Required = append(set.Required, f.Field)
		}
	}
	return set, nil
}

var _ reservation.MetadataRepository = (*MetadataRepository)(nil)
