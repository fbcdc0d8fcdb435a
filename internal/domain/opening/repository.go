package opening

import (
	"context"

	"github.com/sanosuguru/go-space-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

// PeriodRepository は期間・曜日定義のリポジトリ
type PeriodRepository interface {
	// GetByID はIDから期間（曜日定義込み）を取得する
	GetByID(ctx context.Context, id string) (*Period, error)

	// ListForResource はリソース自身の期間一覧を返す
	ListForResource(ctx context.Context, resourceID string) ([]*Period, error)

	// ListForUnit はユニットの期間一覧を返す
	ListForUnit(ctx context.Context, unitID string) ([]*Period, error)

	// Create は期間を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, p *Period) error

	// Update は期間を置き換える（トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, p *Period) error

	// Delete は期間を削除する（トランザクション必須）
	Delete(ctx context.Context, tx transaction.Tx, id string) error
}

// IntervalRepository は実体化された開館インターバルのリポジトリ
type IntervalRepository interface {
	// ListForRange はリソースの [from, to] 範囲のインターバルを日付順で返す
	ListForRange(ctx context.Context, resourceID string, from, to timeutil.Date) ([]Interval, error)

	// ListAll はリソースの全インターバルを返す（再計算の差分用、トランザクション必須）
	// ロック下の読み取りに限定するためトランザクションを要求する
	ListAll(ctx context.Context, tx transaction.Tx, resourceID string) ([]Interval, error)

	// ApplyDiff は差分を適用する（トランザクション必須）
	// delete-missing + insert-added のみで一致行は更新しない
	ApplyDiff(ctx context.Context, tx transaction.Tx, resourceID string, toDelete, toInsert []Interval) error
}
