package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-space-reservation/internal/domain/apperror"
	"github.com/sanosuguru/go-space-reservation/internal/domain/permission"
	"github.com/sanosuguru/go-space-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/accesscode"
)

func draftReservation(owner string, begin, end time.Time) *reservation.Reservation {
	rsv := &reservation.Reservation{
		ResourceID: "res-1",
		Begin:      begin.UTC(),
		End:        end.UTC(),
		State:      reservation.StateConfirmed,
	}
	if owner != "" {
		rsv.UserID = &owner
	}
	return rsv
}

func (d *testDeps) validate(checker *permission.Checker, rsv, existing *reservation.Reservation) error {
	return d.service.validateReservation(context.Background(), d.tx, checker,
		newTestResource(), newTestUnit(), rsv, existing)
}

func TestValidateReservation_Success(t *testing.T) {
	deps := newTestDeps()
	deps.expectNoOverlap()
	rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
	assert.NoError(t, deps.validate(userChecker("user-1"), rsv, nil))
}

func TestValidateReservation_SlotMisalignment(t *testing.T) {
	deps := newTestDeps()
	rsv := draftReservation("user-1", helsinkiTime(11, 10, 15), helsinkiTime(11, 12, 15))
	err := deps.validate(userChecker("user-1"), rsv, nil)
	assert.True(t, apperror.Is(err, apperror.KindSlotMisalignment))
}

func TestValidateReservation_SlotAlignmentIgnoredByAdmin(t *testing.T) {
	deps := newTestDeps()
	deps.expectNoOverlap()
	rsv := draftReservation("admin-1", helsinkiTime(11, 10, 15), helsinkiTime(11, 12, 15))
	assert.NoError(t, deps.validate(adminChecker("admin-1", "unit-1"), rsv, nil))
}

func TestValidateReservation_PastGuard(t *testing.T) {
	deps := newTestDeps()
	// 現在は基準日9:00。前日の予約は過去
	rsv := draftReservation("user-1", helsinkiTime(9, 10, 0), helsinkiTime(9, 12, 0))
	err := deps.validate(userChecker("user-1"), rsv, nil)
	assert.True(t, apperror.Is(err, apperror.KindTimePast))

	// 管理者は過去の予約を記録できる
	deps2 := newTestDeps()
	deps2.expectNoOverlap()
	assert.NoError(t, deps2.validate(adminChecker("admin-1", "unit-1"),
		draftReservation("admin-1", helsinkiTime(9, 10, 0), helsinkiTime(9, 12, 0)), nil))
}

func TestValidateReservation_MultiDay(t *testing.T) {
	t.Run("日をまたぐ予約は拒否", func(t *testing.T) {
		deps := newTestDeps()
		rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(12, 10, 0))
		err := deps.validate(userChecker("user-1"), rsv, nil)
		assert.True(t, apperror.Is(err, apperror.KindMultiDay))
	})

	t.Run("深夜0時ちょうどに終わる予約は単日", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		// 23:00〜24:00 は深夜営業インターバルがあれば単日扱い
		deps.openings.intervals = []ResolvedInterval{{
			OpensUTC:  helsinkiTime(11, 20, 0).UTC(),
			ClosesUTC: helsinkiTime(12, 0, 0).UTC(),
		}}
		rsv := draftReservation("user-1", helsinkiTime(11, 23, 0), helsinkiTime(12, 0, 0))
		assert.NoError(t, deps.validate(userChecker("user-1"), rsv, nil))
	})
}

func TestValidateReservation_OutsideOpeningHours(t *testing.T) {
	deps := newTestDeps()
	rsv := draftReservation("user-1", helsinkiTime(11, 6, 0), helsinkiTime(11, 7, 30))
	err := deps.validate(userChecker("user-1"), rsv, nil)
	assert.True(t, apperror.Is(err, apperror.KindOutsideOpeningHours))

	t.Run("can_ignore_opening_hoursで許可", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		checker := grantChecker("staff-1", "unit-1", permission.CanIgnoreOpeningHours)
		assert.NoError(t, deps.validate(checker,
			draftReservation("staff-1", helsinkiTime(11, 6, 0), helsinkiTime(11, 7, 30)), nil))
	})
}

func TestValidateReservation_AdvanceWindows(t *testing.T) {
	maxDays := 5
	minDays := 1

	t.Run("先すぎる予約", func(t *testing.T) {
		deps := newTestDeps()
		res := newTestResource()
		res.ReservableMaxDaysInAdvance = &maxDays
		// 基準日+6日の0時が上限。day 17 の予約は超過
		deps.openings.intervals = append(deps.openings.intervals, ResolvedInterval{
			OpensUTC:  helsinkiTime(17, 8, 0).UTC(),
			ClosesUTC: helsinkiTime(17, 18, 0).UTC(),
		})
		rsv := draftReservation("user-1", helsinkiTime(17, 10, 0), helsinkiTime(17, 12, 0))
		err := deps.service.validateReservation(context.Background(), deps.tx,
			userChecker("user-1"), res, newTestUnit(), rsv, nil)
		assert.True(t, apperror.Is(err, apperror.KindAdvanceWindowViolation))
	})

	t.Run("直前すぎる予約", func(t *testing.T) {
		deps := newTestDeps()
		res := newTestResource()
		res.ReservableMinDaysInAdvance = &minDays
		// 最短は基準日+2日の0時。翌日の予約は早すぎる
		rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		err := deps.service.validateReservation(context.Background(), deps.tx,
			userChecker("user-1"), res, newTestUnit(), rsv, nil)
		assert.True(t, apperror.Is(err, apperror.KindAdvanceWindowViolation))
	})

	t.Run("ユニット既定へのフォールバック", func(t *testing.T) {
		deps := newTestDeps()
		u := newTestUnit()
		u.ReservableMinDaysInAdvance = &minDays
		rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		err := deps.service.validateReservation(context.Background(), deps.tx,
			userChecker("user-1"), newTestResource(), u, rsv, nil)
		assert.True(t, apperror.Is(err, apperror.KindAdvanceWindowViolation))
	})

	t.Run("管理者はウィンドウ制約なし", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		res := newTestResource()
		res.ReservableMinDaysInAdvance = &minDays
		rsv := draftReservation("admin-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		err := deps.service.validateReservation(context.Background(), deps.tx,
			adminChecker("admin-1", "unit-1"), res, newTestUnit(), rsv, nil)
		assert.NoError(t, err)
	})
}

func TestValidateReservation_MaxPeriod(t *testing.T) {
	maxPeriod := time.Hour

	t.Run("上限超過", func(t *testing.T) {
		deps := newTestDeps()
		res := newTestResource()
		res.MaxPeriod = &maxPeriod
		rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		err := deps.service.validateReservation(context.Background(), deps.tx,
			userChecker("user-1"), res, newTestUnit(), rsv, nil)
		assert.True(t, apperror.Is(err, apperror.KindTooLong))
	})

	t.Run("can_ignore_max_periodで許可", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		res := newTestResource()
		res.MaxPeriod = &maxPeriod
		checker := grantChecker("staff-1", "unit-1", permission.CanIgnoreMaxPeriod)
		rsv := draftReservation("staff-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		err := deps.service.validateReservation(context.Background(), deps.tx,
			checker, res, newTestUnit(), rsv, nil)
		assert.NoError(t, err)
	})
}

func TestValidateReservation_MinPeriod(t *testing.T) {
	deps := newTestDeps()
	res := newTestResource()
	res.MinPeriod = time.Hour
	rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 10, 30))
	err := deps.service.validateReservation(context.Background(), deps.tx,
		userChecker("user-1"), res, newTestUnit(), rsv, nil)
	assert.True(t, apperror.Is(err, apperror.KindTooShort))
}

func TestValidateReservation_ZeroLength(t *testing.T) {
	deps := newTestDeps()
	rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 10, 0))
	err := deps.validate(userChecker("user-1"), rsv, nil)
	assert.True(t, apperror.Is(err, apperror.KindTooShort))
}

func TestValidateReservation_ReservableGate(t *testing.T) {
	res := newTestResource()
	res.Reservable = false
	rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))

	t.Run("一般ユーザーは拒否", func(t *testing.T) {
		deps := newTestDeps()
		err := deps.service.validateReservation(context.Background(), deps.tx,
			userChecker("user-1"), res, newTestUnit(), rsv, nil)
		assert.True(t, apperror.Is(err, apperror.KindPermissionDenied))
	})

	t.Run("can_make_reservationsで許可", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		checker := grantChecker("user-1", "unit-1", permission.CanMakeReservations)
		err := deps.service.validateReservation(context.Background(), deps.tx,
			checker, res, newTestUnit(), rsv, nil)
		assert.NoError(t, err)
	})
}

func TestValidateReservation_Overlap(t *testing.T) {
	deps := newTestDeps()
	deps.rsvRepo.On("ListOverlapping", mock.Anything, deps.tx, "res-1", mock.Anything, mock.Anything, "").
		Return([]*reservation.Reservation{{ID: "other"}}, nil)
	rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
	err := deps.validate(userChecker("user-1"), rsv, nil)
	assert.True(t, apperror.Is(err, apperror.KindOverlapConflict))
}

func TestValidateReservation_Quota(t *testing.T) {
	limit := 1
	rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))

	t.Run("上限到達で拒否", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		res := newTestResource()
		res.MaxReservationsPerUser = &limit
		deps.rsvRepo.On("CountActiveForUser", mock.Anything, deps.tx, "res-1", "user-1", testNow).
			Return(1, nil)
		err := deps.service.validateReservation(context.Background(), deps.tx,
			userChecker("user-1"), res, newTestUnit(), rsv, nil)
		assert.True(t, apperror.Is(err, apperror.KindQuotaExceeded))
	})

	t.Run("上限未満は許可", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		res := newTestResource()
		res.MaxReservationsPerUser = &limit
		deps.rsvRepo.On("CountActiveForUser", mock.Anything, deps.tx, "res-1", "user-1", testNow).
			Return(0, nil)
		err := deps.service.validateReservation(context.Background(), deps.tx,
			userChecker("user-1"), res, newTestUnit(), rsv, nil)
		assert.NoError(t, err)
	})

	t.Run("所有者自身の更新では数えない", func(t *testing.T) {
		deps := newTestDeps()
		res := newTestResource()
		res.MaxReservationsPerUser = &limit
		existing := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		existing.ID = "rsv-1"
		deps.rsvRepo.On("ListOverlapping", mock.Anything, deps.tx, "res-1", mock.Anything, mock.Anything, "rsv-1").
			Return([]*reservation.Reservation{}, nil)
		err := deps.service.validateReservation(context.Background(), deps.tx,
			userChecker("user-1"), res, newTestUnit(), rsv, existing)
		assert.NoError(t, err)
		deps.rsvRepo.AssertNotCalled(t, "CountActiveForUser",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("can_ignore_max_reservations_per_userでスキップ", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		res := newTestResource()
		res.MaxReservationsPerUser = &limit
		checker := grantChecker("user-1", "unit-1", permission.CanIgnoreMaxReservationsPerUser)
		err := deps.service.validateReservation(context.Background(), deps.tx,
			checker, res, newTestUnit(), rsv, nil)
		assert.NoError(t, err)
	})
}

func TestValidateReservation_RequiredMetadata(t *testing.T) {
	setID := "set-1"
	res := newTestResource()
	res.MetadataSetID = &setID
	set := &reservation.MetadataSet{
		ID:        setID,
		Supported: []string{"reserver_name"},
		Required:  []string{"reserver_name"},
	}

	t.Run("必須フィールド欠落", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		deps.metaRepo.On("GetSetByID", mock.Anything, setID).Return(set, nil)
		rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		err := deps.service.validateReservation(context.Background(), deps.tx,
			userChecker("user-1"), res, newTestUnit(), rsv, nil)
		require.Error(t, err)
		assert.True(t, apperror.Is(err, apperror.KindMissingRequiredField))
	})

	t.Run("必須フィールド充足", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		deps.metaRepo.On("GetSetByID", mock.Anything, setID).Return(set, nil)
		rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		rsv.Reserver.ReserverName = "山田太郎"
		err := deps.service.validateReservation(context.Background(), deps.tx,
			userChecker("user-1"), res, newTestUnit(), rsv, nil)
		assert.NoError(t, err)
	})
}

func TestValidateReservation_ActorFields(t *testing.T) {
	t.Run("一般ユーザーのコメントは拒否", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		rsv.Comments = "管理メモ"
		err := deps.validate(userChecker("user-1"), rsv, nil)
		assert.True(t, apperror.Is(err, apperror.KindFieldNotAllowed))
	})

	t.Run("他ユーザーの代理予約は権限が必要", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		rsv := draftReservation("someone-else", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		err := deps.validate(userChecker("user-1"), rsv, nil)
		assert.True(t, apperror.Is(err, apperror.KindFieldNotAllowed))

		deps2 := newTestDeps()
		deps2.expectNoOverlap()
		checker := grantChecker("staff-1", "unit-1", permission.CanCreateReservationsForOtherUsers)
		assert.NoError(t, deps2.validate(checker, rsv, nil))
	})

	t.Run("スタッフイベントは権限と必須フィールドが必要", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		rsv.StaffEvent = true
		err := deps.validate(userChecker("user-1"), rsv, nil)
		assert.True(t, apperror.Is(err, apperror.KindFieldNotAllowed))

		// 権限があっても予約者名とイベント説明が無ければ拒否
		deps2 := newTestDeps()
		deps2.expectNoOverlap()
		checker := grantChecker("staff-1", "unit-1",
			permission.CanCreateStaffEvent, permission.CanCreateReservationsForOtherUsers)
		err = deps2.validate(checker, rsv, nil)
		assert.True(t, apperror.Is(err, apperror.KindFieldNotAllowed))

		deps3 := newTestDeps()
		deps3.expectNoOverlap()
		filled := *rsv
		filled.Reserver.ReserverName = "山田太郎"
		filled.Event.EventDescription = "職員研修"
		assert.NoError(t, deps3.validate(checker, &filled, nil))
	})
}

func TestValidateReservation_AccessCode(t *testing.T) {
	t.Run("形式不正", func(t *testing.T) {
		deps := newTestDeps()
		deps.expectNoOverlap()
		res := newTestResource()
		res.AccessCodeType = accesscode.TypePIN4
		rsv := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		rsv.AccessCode = "12ab"
		err := deps.service.validateReservation(context.Background(), deps.tx,
			userChecker("user-1"), res, newTestUnit(), rsv, nil)
		assert.True(t, apperror.Is(err, apperror.KindFieldNotAllowed))
	})

	t.Run("確定済み予約のコードは不変", func(t *testing.T) {
		deps := newTestDeps()
		res := newTestResource()
		res.AccessCodeType = accesscode.TypePIN4
		existing := draftReservation("user-1", helsinkiTime(11, 10, 0), helsinkiTime(11, 12, 0))
		existing.ID = "rsv-1"
		existing.State = reservation.StateConfirmed
		existing.AccessCode = "1234"
		deps.rsvRepo.On("ListOverlapping", mock.Anything, deps.tx, "res-1", mock.Anything, mock.Anything, "rsv-1").
			Return([]*reservation.Reservation{}, nil)

		updated := *existing
		updated.AccessCode = "5678"
		err := deps.service.validateReservation(context.Background(), deps.tx,
			userChecker("user-1"), res, newTestUnit(), &updated, existing)
		assert.True(t, apperror.Is(err, apperror.KindFieldNotAllowed))
	})
}
