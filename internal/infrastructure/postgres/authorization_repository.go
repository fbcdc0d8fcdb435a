package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-space-reservation/internal/domain/permission"
)

type userRow struct {
	ID                string         `db:"id"`
	IsSuperuser       bool           `db:"is_superuser"`
	IsGeneralAdmin    bool           `db:"is_general_admin"`
	IsStaff           bool           `db:"is_staff"`
	PreferredLanguage sql.NullString `db:"preferred_language"`
}

type unitAuthRow struct {
	UserID string `db:"user_id"`
	UnitID string `db:"unit_id"`
	Level  string `db:"level"`
}

type groupAuthRow struct {
	UserID      string `db:"user_id"`
	UnitGroupID string `db:"unit_group_id"`
	Level       string `db:"level"`
}

type grantRow struct {
	UserID          string         `db:"user_id"`
	Permission      string         `db:"permission"`
	UnitID          sql.NullString `db:"unit_id"`
	ResourceGroupID sql.NullString `db:"resource_group_id"`
}

// AuthorizationRepository は認可グラフを一括で読み込む
type AuthorizationRepository struct{ db *sqlx.DB }

func NewAuthorizationRepository(db *sqlx.DB) *AuthorizationRepository {
	return &AuthorizationRepository{db: db}
}

// LoadSnapshot はユーザーの認可状態を一括で読み込む
// 未認証（userIDが空）や未知のユーザーは空のスナップショットになる
func (r *AuthorizationRepository) LoadSnapshot(ctx context.Context, userID string) (*permission.Snapshot, error) {
	snap := &permission.Snapshot{GroupMembers: make(map[string][]string)}
	if userID == "" {
		return snap, nil
	}

	var u userRow
	if err := r.db.GetContext(ctx, &u,
		`SELECT id, is_superuser, is_general_admin, is_staff, preferred_language FROM users WHERE id = $1`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, nil
		}
		return nil, fmt.Errorf("ユーザー取得に失敗: %w", err)
	}
	snap.User = permission.User{
		ID:                u.ID,
		IsSuperuser:       u.IsSuperuser,
		IsGeneralAdmin:    u.IsGeneralAdmin,
		IsStaff:           u.IsStaff,
		PreferredLanguage: u.PreferredLanguage.String,
	}

	var unitAuths []unitAuthRow
	if err := r.db.SelectContext(ctx, &unitAuths,
		`SELECT user_id, unit_id, level FROM unit_authorizations WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("ユニット認可の取得に失敗: %w", err)
	}
	for _, ua := range unitAuths {
		snap.UnitAuths = append(snap.UnitAuths, permission.UnitAuthorization{
			UserID: ua.UserID, UnitID: ua.UnitID, Level: permission.Role(ua.Level),
		})
	}

	var groupAuths []groupAuthRow
	if err := r.db.SelectContext(ctx, &groupAuths,
		`SELECT user_id, unit_group_id, level FROM unit_group_authorizations WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("ユニットグループ認可の取得に失敗: %w", err)
	}
	for _, ga := range groupAuths {
		snap.GroupAuths = append(snap.GroupAuths, permission.UnitGroupAuthorization{
			UserID: ga.UserID, UnitGroupID: ga.UnitGroupID, Level: permission.Role(ga.Level),
		})
		members, err := r.groupMembers(ctx, ga.UnitGroupID)
		if err != nil {
			return nil, err
		}
		snap.GroupMembers[ga.UnitGroupID] = members
	}

	var grants []grantRow
	if err := r.db.SelectContext(ctx, &grants,
		`SELECT user_id, permission, unit_id, resource_group_id FROM permission_grants WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("権限付与の取得に失敗: %w", err)
	}
	for _, g := range grants {
		snap.Grants = append(snap.Grants, permission.Grant{
			UserID:          g.UserID,
			Permission:      permission.Permission(g.Permission),
			UnitID:          g.UnitID.String,
			ResourceGroupID: g.ResourceGroupID.String,
		})
	}
	return snap, nil
}

func (r *AuthorizationRepository) groupMembers(ctx context.Context, groupID string) ([]string, error) {
	var memberIDs []string
	if err := r.db.SelectContext(ctx, &memberIDs,
		`SELECT unit_id FROM unit_group_members WHERE unit_group_id = $1`, groupID); err != nil {
		return nil, fmt.Errorf("ユニットグループ所属の取得に失敗: %w", err)
	}
	return memberIDs, nil
}

var _ permission.Repository = (*AuthorizationRepository)(nil)
