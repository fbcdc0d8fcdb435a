package application

import (
	"github.com/sanosuguru/go-space-reservation/internal/domain/permission"
	"github.com/sanosuguru/go-space-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-space-reservation/internal/domain/resource"
)

// ReservationView はアクターの権限で絞り込んだ予約の公開形
//
// 機微フィールド（アクセスコード・予約者身元ブロック・コメント）は
// 所有者と権限保持者にのみ含める。
type ReservationView struct {
	Reservation *reservation.Reservation
	// ShowAccessCode が偽の場合、アクセスコードを出力に含めない
	ShowAccessCode bool
	// ShowExtraFields が偽の場合、予約者身元ブロックを含めない
	ShowExtraFields bool
	// ShowComments が偽の場合、コメントを含めない
	ShowComments bool
	// ShowUser が偽の場合、ユーザー・承認者のIDを含めない
	ShowUser bool
}

// BuildReservationView はアクターに応じた可視性フラグを解決する
func BuildReservationView(checker *permission.Checker, res *resource.Resource, rsv *reservation.Reservation) ReservationView {
	isOwner := checker != nil && rsv.IsOwnedBy(checker.User().ID)
	isAdmin := checker != nil && checker.IsAdminOf(res)

	return ReservationView{
		Reservation:     rsv,
		ShowAccessCode:  isOwner || isAdmin || checker.Has(res, permission.CanViewReservationAccessCode),
		ShowExtraFields: isOwner || isAdmin || checker.Has(res, permission.CanViewReservationExtraFields),
		ShowComments:    isOwner || isAdmin || checker.Has(res, permission.CanAccessReservationComments),
		// 予約者・承認者のIDはユニット管理者にのみ開示する
		ShowUser: isAdmin,
	}
}
