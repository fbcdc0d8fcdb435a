package application

import (
	"context"
	"fmt"
	"time"

	"github.com/sanosuguru/go-space-reservation/internal/domain/apperror"
	"github.com/sanosuguru/go-space-reservation/internal/domain/permission"
	"github.com/sanosuguru/go-space-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-space-reservation/internal/domain/resource"
	"github.com/sanosuguru/go-space-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-space-reservation/internal/domain/unit"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/accesscode"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

// validateReservation は予約ミューテーションの検証パイプライン
//
// リソース行ロック取得後のトランザクション内で呼ぶこと。検証順序は
// 固定で、最初に違反した規則のエラーを返す。existing は更新時の
// 既存行（新規作成ではnil）。
func (s *ReservationService) validateReservation(
	ctx context.Context,
	tx transaction.Tx,
	checker *permission.Checker,
	res *resource.Resource,
	u *unit.Unit,
	rsv *reservation.Reservation,
	existing *reservation.Reservation,
) error {
	loc := u.Location(s.cfg.DefaultTimeZone)
	now := s.now()
	isAdmin := checker.IsAdminOf(res)
	ignoreHours := isAdmin || checker.Has(res, permission.CanIgnoreOpeningHours)

	if !rsv.End.After(rsv.Begin) {
		return apperror.New(apperror.KindTooShort, "終了時刻は開始時刻より後でなければなりません")
	}

	intervals, err := s.openingIntervals(ctx, res.ID, rsv.Begin, rsv.End, loc)
	if err != nil {
		return err
	}

	// 1. スロット整列（壁時計時刻で判定）
	if !ignoreHours {
		if iv := containingInterval(intervals, rsv.Begin); iv != nil {
			if !timeutil.IsAlignedToSlot(rsv.Begin, iv.OpensUTC, res.SlotSize, loc) ||
				!timeutil.IsAlignedToSlot(rsv.End, iv.OpensUTC, res.SlotSize, loc) {
				return apperror.New(apperror.KindSlotMisalignment, "予約時刻がスロット境界に揃っていません")
			}
		}
	}

	// 2. 過去ガード
	if !isAdmin && rsv.End.Before(now) {
		return apperror.New(apperror.KindTimePast, "過去の時間帯は予約できません")
	}

	// 3. 単日制約（endは排他端なので1ナノ秒戻して判定）
	if !isAdmin && !timeutil.SameLocalDate(rsv.Begin, rsv.End.Add(-time.Nanosecond), loc) {
		return apperror.New(apperror.KindMultiDay, "予約は1日に収まる必要があります")
	}

	// 4. 開館時間
	if !ignoreHours {
		if !coveredByInterval(intervals, rsv.Begin, rsv.End) {
			return apperror.New(apperror.KindOutsideOpeningHours, "開館時間外の予約はできません")
		}
	}

	// 5. 事前予約ウィンドウ
	if !isAdmin {
		if max := res.MaxAdvanceDays(u.ReservableMaxDaysInAdvance); max != nil {
			limit := timeutil.AddDaysMidnight(now, *max+1, loc)
			if rsv.Begin.After(limit) {
				return apperror.New(apperror.KindAdvanceWindowViolation, "予約可能期間より先の予約はできません")
			}
		}
		if min := res.MinAdvanceDays(u.ReservableMinDaysInAdvance); min != nil {
			earliest := timeutil.AddDaysMidnight(now, *min+1, loc)
			if rsv.Begin.Before(earliest) {
				return apperror.New(apperror.KindAdvanceWindowViolation, "直前すぎる予約はできません")
			}
		}
	}

	dur := rsv.End.Sub(rsv.Begin)

	// 6. 最大時間
	if res.MaxPeriod != nil && dur > *res.MaxPeriod {
		if !isAdmin && !checker.Has(res, permission.CanIgnoreMaxPeriod) {
			return apperror.New(apperror.KindTooLong, "予約時間が上限を超えています")
		}
	}

	// 7. 最小時間
	if res.MinPeriod > 0 && dur < res.MinPeriod {
		return apperror.New(apperror.KindTooShort, "予約時間が下限を満たしていません")
	}

	// 8. 予約可否ゲート
	if !res.Reservable && !isAdmin && !checker.Has(res, permission.CanMakeReservations) {
		return apperror.New(apperror.KindPermissionDenied, "このリソースは予約を受け付けていません")
	}

	// 9. 重複（行ロック下での検査が直列化ポイント）
	excludeID := ""
	if existing != nil {
		excludeID = existing.ID
	}
	overlapping, err := s.reservationRepo.ListOverlapping(ctx, tx, res.ID, rsv.Begin, rsv.End, excludeID)
	if err != nil {
		return fmt.Errorf("重複予約の検査に失敗: %w", err)
	}
	if len(overlapping) > 0 {
		return apperror.New(apperror.KindOverlapConflict, "指定時間帯は既に予約されています")
	}

	// 10. クォータ（新規作成時、または所有者以外の提出時のみ）
	if res.MaxReservationsPerUser != nil && rsv.UserID != nil {
		actorIsOwner := rsv.IsOwnedBy(checker.User().ID)
		if (existing == nil || !actorIsOwner) &&
			!isAdmin && !checker.Has(res, permission.CanIgnoreMaxReservationsPerUser) {
			count, err := s.reservationRepo.CountActiveForUser(ctx, tx, res.ID, *rsv.UserID, now)
			if err != nil {
				return fmt.Errorf("予約数の集計に失敗: %w", err)
			}
			if count >= *res.MaxReservationsPerUser {
				return apperror.New(apperror.KindQuotaExceeded, "このリソースの予約数上限に達しています")
			}
		}
	}

	// 11. メタデータ必須フィールド
	set, err := s.metadataSetFor(ctx, res)
	if err != nil {
		return err
	}
	if err := set.CheckRequired(rsv.FieldMap()); err != nil {
		return err
	}

	// 12. アクター制約フィールド
	if err := s.checkActorFields(checker, res, rsv, isAdmin); err != nil {
		return err
	}

	// 13. アクセスコード整合性
	return checkAccessCode(res, rsv, existing)
}

// checkActorFields は権限を要するフィールドの使用を検証する
func (s *ReservationService) checkActorFields(checker *permission.Checker, res *resource.Resource, rsv *reservation.Reservation, isAdmin bool) error {
	privileged := isAdmin || checker.Has(res, permission.CanCreateReservationsForOtherUsers)

	if rsv.Comments != "" && !privileged {
		return apperror.NewField(apperror.KindFieldNotAllowed, "comments", "コメントの設定は許可されていません")
	}
	if rsv.UserID != nil && *rsv.UserID != checker.User().ID && !privileged {
		return apperror.NewField(apperror.KindFieldNotAllowed, "user", "他ユーザーの代理予約は許可されていません")
	}
	if rsv.StaffEvent {
		if !isAdmin && !checker.Has(res, permission.CanCreateStaffEvent) {
			return apperror.NewField(apperror.KindFieldNotAllowed, "staff_event", "スタッフイベントの作成は許可されていません")
		}
		if rsv.Reserver.ReserverName == "" || rsv.Event.EventDescription == "" {
			return apperror.NewField(apperror.KindFieldNotAllowed, "staff_event", "スタッフイベントには予約者名とイベント説明が必要です")
		}
	}
	return nil
}

// checkAccessCode はアクセスコード種別との整合性を検証する
// confirmed 到達済みの予約ではコードは不変
func checkAccessCode(res *resource.Resource, rsv *reservation.Reservation, existing *reservation.Reservation) error {
	if rsv.AccessCode == "" {
		return nil
	}
	if err := accesscode.Validate(rsv.AccessCode, res.AccessCodeType); err != nil {
		return apperror.NewField(apperror.KindFieldNotAllowed, "access_code", "アクセスコードの形式が不正です")
	}
	if existing != nil && existing.State == reservation.StateConfirmed &&
		existing.AccessCode != "" && rsv.AccessCode != existing.AccessCode {
		return apperror.NewField(apperror.KindFieldNotAllowed, "access_code", "確定済み予約のアクセスコードは変更できません")
	}
	return nil
}

// openingIntervals は予約範囲の検証に必要な開館インターバルを取得する
// 深夜跨ぎのインターバルを拾うため開始日の前日から読む
func (s *ReservationService) openingIntervals(ctx context.Context, resourceID string, begin, end time.Time, loc *time.Location) ([]ResolvedInterval, error) {
	from := timeutil.AddDaysMidnight(begin, -1, loc)
	to := timeutil.AddDaysMidnight(end, 1, loc)
	intervals, err := s.openings.IntervalsForRange(ctx, resourceID, from, to, loc)
	if err != nil {
		return nil, fmt.Errorf("開館時間の取得に失敗: %w", err)
	}
	return intervals, nil
}

// containingInterval はtを含むインターバルを返す（無ければnil）
func containingInterval(intervals []ResolvedInterval, t time.Time) *ResolvedInterval {
	for i := range intervals {
		iv := &intervals[i]
		if !t.Before(iv.OpensUTC) && t.Before(iv.ClosesUTC) {
			return iv
		}
	}
	return nil
}

// coveredByInterval は [begin, end) を完全に含むインターバルが存在するかを返す
func coveredByInterval(intervals []ResolvedInterval, begin, end time.Time) bool {
	for _, iv := range intervals {
		if !begin.Before(iv.OpensUTC) && !end.After(iv.ClosesUTC) {
			return true
		}
	}
	return false
}
