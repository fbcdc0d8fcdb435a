package reservation

import (
	"context"
	"time"

	"github.com/sanosuguru/go-space-reservation/internal/domain/transaction"
)

// ListFilter は予約一覧の絞り込み条件
type ListFilter struct {
	ResourceID      string
	UnitID          string
	UserID          string
	ResourceGroupID string
	States          []State
	Start           *time.Time
	End             *time.Time
	// IncludePast がfalseの場合、終了済みの予約を除外する
	IncludePast bool
	// NeedManualConfirmation はリソース属性での絞り込み（nilなら無視）
	NeedManualConfirmation *bool
	// ApprovableUnitIDs が非nilの場合、これらのユニットのリソースに限定する
	ApprovableUnitIDs []string
	// FreeText は予約者身元ブロックに対する部分一致（管理者のみ使用可）
	FreeText string

	Limit  int
	Offset int
}

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は新しい予約を作成する（トランザクション必須）
	Create(ctx context.Context, tx transaction.Tx, r *Reservation) error

	// Update は予約を更新する（トランザクション必須）
	Update(ctx context.Context, tx transaction.Tx, r *Reservation) error

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Reservation, error)

	// GetByIDForUpdate はトランザクション内で予約行をロックして取得する
	// リソースロック後の再読込用（トランザクション必須）
	GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*Reservation, error)

	// ListOverlapping はトランザクション内で [begin, end) と交差する
	// 容量占有状態の予約を返す。excludeIDは編集中の予約の除外用
	ListOverlapping(ctx context.Context, tx transaction.Tx, resourceID string, begin, end time.Time, excludeID string) ([]*Reservation, error)

	// CountActiveForUser はトランザクション内でクォータ対象の予約数を数える
	CountActiveForUser(ctx context.Context, tx transaction.Tx, resourceID, userID string, now time.Time) (int, error)

	// ListForRange は範囲と交差する容量占有状態の予約を返す（読み取り専用、ロック無し）
	ListForRange(ctx context.Context, resourceID string, begin, end time.Time) ([]*Reservation, error)

	// List はフィルターに一致する予約一覧を返す
	List(ctx context.Context, filter ListFilter) ([]*Reservation, error)

	// ListExpiredWaiting はolderThanより前に作られた waiting_for_payment 予約を返す
	ListExpiredWaiting(ctx context.Context, olderThan time.Time) ([]*Reservation, error)
}

// MetadataRepository はメタデータセットのリポジトリ
type MetadataRepository interface {
	// GetSetByID はIDからメタデータセットを取得する
	GetSetByID(ctx context.Context, id string) (*MetadataSet, error)
}
