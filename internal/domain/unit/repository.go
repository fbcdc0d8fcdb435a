package unit

import "context"

// Repository はユニットリポジトリのインターフェース
type Repository interface {
	// GetByID はIDからユニットを取得する
	GetByID(ctx context.Context, id string) (*Unit, error)

	// Create はユニットを作成する
	Create(ctx context.Context, u *Unit) error

	// Delete はユニットを削除する
	// 所属リソースが存在する場合は ErrUnitProtected を返す
	Delete(ctx context.Context, id string) error

	// GetGroupsContaining はユニットを含むユニットグループ一覧を返す
	GetGroupsContaining(ctx context.Context, unitID string) ([]*UnitGroup, error)
}
