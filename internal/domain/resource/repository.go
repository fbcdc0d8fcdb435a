package resource

import (
	"context"

	"github.com/sanosuguru/go-space-reservation/internal/domain/transaction"
)

// Repository はリソースリポジトリのインターフェース
type Repository interface {
	// GetByID はIDからリソースを取得する
	GetByID(ctx context.Context, id string) (*Resource, error)

	// Create はリソースを作成する
	Create(ctx context.Context, r *Resource) error

	// ListByUnit はユニット配下のリソース一覧を返す
	ListByUnit(ctx context.Context, unitID string) ([]*Resource, error)

	// List は公開リソースの一覧を返す
	List(ctx context.Context, limit, offset int) ([]*Resource, error)

	// LockForUpdate はトランザクション内でリソース行の排他ロックを取得する
	// 同一リソースへ競合するミューテーションはここで直列化される
	LockForUpdate(ctx context.Context, tx transaction.Tx, id string) error
}
