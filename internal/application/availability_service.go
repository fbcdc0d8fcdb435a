package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sanosuguru/go-space-reservation/internal/config"
	"github.com/sanosuguru/go-space-reservation/internal/domain/apperror"
	"github.com/sanosuguru/go-space-reservation/internal/domain/availability"
	"github.com/sanosuguru/go-space-reservation/internal/domain/opening"
	"github.com/sanosuguru/go-space-reservation/internal/domain/permission"
	"github.com/sanosuguru/go-space-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-space-reservation/internal/domain/resource"
	"github.com/sanosuguru/go-space-reservation/internal/domain/unit"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

// AvailabilityService はリソース詳細の開館時間・空き時間ビューを組み立てる
type AvailabilityService struct {
	resourceRepo    resource.Repository
	unitRepo        unit.Repository
	reservationRepo reservation.Repository
	openings        *OpeningService
	cfg             config.ReservationConfig
	now             func() time.Time
}

func NewAvailabilityService(
	resr resource.Repository,
	ur unit.Repository,
	rr reservation.Repository,
	openings *OpeningService,
	cfg config.ReservationConfig,
) *AvailabilityService {
	return &AvailabilityService{
		resourceRepo:    resr,
		unitRepo:        ur,
		reservationRepo: rr,
		openings:        openings,
		cfg:             cfg,
		now:             time.Now,
	}
}

// SetClock はテスト用に現在時刻の供給元を差し替える
func (s *AvailabilityService) SetClock(now func() time.Time) {
	s.now = now
}

// DayOpening は1暦日分の開館時間表示
type DayOpening struct {
	Date   timeutil.Date
	Opens  *time.Time
	Closes *time.Time
}

// ResourceAvailability はリソース詳細に載せる可用性ビュー
type ResourceAvailability struct {
	Resource       *resource.Resource
	Unit           *unit.Unit
	OpeningHours   []DayOpening
	AvailableHours []timeutil.Interval
	// Reservable はアクターが今このリソースを予約できるか
	Reservable bool
}

// AvailabilityQuery は可用性ビューの問い合わせ
type AvailabilityQuery struct {
	ResourceID string
	From       timeutil.Date
	To         timeutil.Date
	// MinDuration が正なら、これ未満の空き区間を除外する
	MinDuration time.Duration
	// ExcludeReservationID は予約の移動先検索で現予約を無視するために使う
	ExcludeReservationID string
}

// GetResourceAvailability は日付範囲の開館時間と空き時間を計算して返す
//
// 空き区間は開館インターバルに切り詰められ、非終端予約と交差しない。
// 非公開リソースは管理者と can_view 系権限保持者以外には見せない。
func (s *AvailabilityService) GetResourceAvailability(ctx context.Context, checker *permission.Checker, q AvailabilityQuery) (*ResourceAvailability, error) {
	res, err := s.resourceRepo.GetByID(ctx, q.ResourceID)
	if err != nil {
		if errors.Is(err, resource.ErrResourceNotFound) {
			return nil, apperror.New(apperror.KindNotFound, resource.ErrResourceNotFound.Error())
		}
		return nil, fmt.Errorf("リソース取得に失敗: %w", err)
	}
	if !res.Public && !checker.IsAdminOf(res) {
		return nil, apperror.New(apperror.KindNotFound, resource.ErrResourceNotFound.Error())
	}
	u, err := s.unitRepo.GetByID(ctx, res.UnitID)
	if err != nil {
		return nil, fmt.Errorf("ユニット取得に失敗: %w", err)
	}
	loc := u.Location(s.cfg.DefaultTimeZone)

	if q.To.Before(q.From) {
		return nil, apperror.New(apperror.KindFieldNotAllowed, "日付範囲が不正です")
	}

	intervals, err := s.openings.ListIntervals(ctx, res.ID, q.From, q.To)
	if err != nil {
		return nil, err
	}

	rangeStart := q.From.Time(loc).UTC()
	rangeEnd := q.To.AddDays(1).Time(loc).UTC()
	booked, err := s.reservationRepo.ListForRange(ctx, res.ID, rangeStart, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("既存予約の取得に失敗: %w", err)
	}

	openIvs := make([]timeutil.Interval, 0, len(intervals))
	for _, iv := range intervals {
		openIvs = append(openIvs, timeutil.Interval{Start: iv.OpensUTC, End: iv.ClosesUTC})
	}
	bookedIvs := make([]availability.Booked, 0, len(booked))
	for _, b := range booked {
		bookedIvs = append(bookedIvs, availability.Booked{
			ReservationID: b.ID,
			Interval:      timeutil.Interval{Start: b.Begin, End: b.End},
		})
	}

	free := availability.FreeIntervals(availability.Query{
		Range:                timeutil.Interval{Start: rangeStart, End: rangeEnd},
		Opening:              openIvs,
		Reservations:         bookedIvs,
		MinDuration:          q.MinDuration,
		ExcludeReservationID: q.ExcludeReservationID,
	})

	return &ResourceAvailability{
		Resource:       res,
		Unit:           u,
		OpeningHours:   s.openingHoursByDay(q.From, q.To, intervals),
		AvailableHours: free,
		Reservable:     s.isReservableBy(checker, res),
	}, nil
}

// openingHoursByDay は範囲内の全暦日について開館時間（閉館日はnil）を並べる
func (s *AvailabilityService) openingHoursByDay(from, to timeutil.Date, intervals []opening.Interval) []DayOpening {
	byDate := make(map[string]opening.Interval, len(intervals))
	for _, iv := range intervals {
		byDate[iv.Date.String()] = iv
	}
	var out []DayOpening
	for d := from; !d.After(to); d = d.AddDays(1) {
		entry := DayOpening{Date: d}
		if iv, ok := byDate[d.String()]; ok {
			opens, closes := iv.OpensUTC, iv.ClosesUTC
			entry.Opens = &opens
			entry.Closes = &closes
		}
		out = append(out, entry)
	}
	return out
}

func (s *AvailabilityService) isReservableBy(checker *permission.Checker, res *resource.Resource) bool {
	if res.Reservable {
		return true
	}
	return checker.IsAdminOf(res) || checker.Has(res, permission.CanMakeReservations)
}
