package handler

import (
	"context"

	"github.com/sanosuguru/go-space-reservation/internal/application"
	"github.com/sanosuguru/go-space-reservation/internal/domain/opening"
	"github.com/sanosuguru/go-space-reservation/internal/domain/permission"
	"github.com/sanosuguru/go-space-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-space-reservation/internal/domain/resource"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

// ReservationServiceInterface は予約サービスのインターフェース
type ReservationServiceInterface interface {
	LoadChecker(ctx context.Context, userID string) (*permission.Checker, error)
	CreateReservation(ctx context.Context, checker *permission.Checker, input application.ReservationInput) (*reservation.Reservation, error)
	UpdateReservation(ctx context.Context, checker *permission.Checker, id string, input application.ReservationInput, targetState reservation.State) (*reservation.Reservation, error)
	CancelReservation(ctx context.Context, checker *permission.Checker, id string) (*reservation.Reservation, error)
	TransitionState(ctx context.Context, checker *permission.Checker, id string, target reservation.State, paymentSignal bool) (*reservation.Reservation, error)
	GetReservation(ctx context.Context, id string) (*reservation.Reservation, error)
	ListReservations(ctx context.Context, filter reservation.ListFilter) ([]*reservation.Reservation, error)
	BuildView(ctx context.Context, checker *permission.Checker, rsv *reservation.Reservation) (application.ReservationView, error)
}

// AvailabilityServiceInterface はリソース可用性サービスのインターフェース
type AvailabilityServiceInterface interface {
	GetResourceAvailability(ctx context.Context, checker *permission.Checker, q application.AvailabilityQuery) (*application.ResourceAvailability, error)
}

// ResourceReaderInterface はリソース一覧の読み取りインターフェース
type ResourceReaderInterface interface {
	List(ctx context.Context, limit, offset int) ([]*resource.Resource, error)
}

// OpeningServiceInterface は開館期間サービスのインターフェース
type OpeningServiceInterface interface {
	CreatePeriod(ctx context.Context, checker *permission.Checker, p *opening.Period) error
	UpdatePeriod(ctx context.Context, checker *permission.Checker, p *opening.Period) error
	DeletePeriod(ctx context.Context, checker *permission.Checker, id string) error
	ListPeriods(ctx context.Context, resourceID string) ([]*opening.Period, error)
	ListIntervals(ctx context.Context, resourceID string, from, to timeutil.Date) ([]opening.Interval, error)
	RecomputeResource(ctx context.Context, resourceID string) error
	RequestRecompute(ctx context.Context, checker *permission.Checker, resourceID string) error
}
