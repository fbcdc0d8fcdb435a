package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-space-reservation/internal/config"
	"github.com/sanosuguru/go-space-reservation/internal/domain/apperror"
	"github.com/sanosuguru/go-space-reservation/internal/domain/notification"
	"github.com/sanosuguru/go-space-reservation/internal/domain/permission"
	"github.com/sanosuguru/go-space-reservation/internal/domain/reservation"
	"github.com/sanosuguru/go-space-reservation/internal/domain/resource"
	"github.com/sanosuguru/go-space-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-space-reservation/internal/domain/unit"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/accesscode"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/metrics"
)

// ReservationService は予約の作成・更新・状態遷移を司るアプリケーションサービス
//
// ミューテーションは必ず 1 トランザクション内で「リソース行ロック →
// バリデーション → 永続化」の順に行う。イベント発行はコミット後。
type ReservationService struct {
	txm             transaction.Manager
	reservationRepo reservation.Repository
	resourceRepo    resource.Repository
	unitRepo        unit.Repository
	metadataRepo    reservation.MetadataRepository
	permRepo        permission.Repository
	openings        OpeningReader
	dispatcher      notification.Dispatcher
	cfg             config.ReservationConfig
	features        config.FeatureFlags
	now             func() time.Time
}

// OpeningReader は検証と空き計算が必要とする開館インターバルの読み取り面
type OpeningReader interface {
	IntervalsForRange(ctx context.Context, resourceID string, from, to time.Time, loc *time.Location) ([]ResolvedInterval, error)
}

// ResolvedInterval はUTCに解決済みの開館インターバル
type ResolvedInterval struct {
	OpensUTC  time.Time
	ClosesUTC time.Time
}

func NewReservationService(
	txm transaction.Manager,
	rr reservation.Repository,
	resr resource.Repository,
	ur unit.Repository,
	mr reservation.MetadataRepository,
	pr permission.Repository,
	openings OpeningReader,
	dispatcher notification.Dispatcher,
	cfg config.ReservationConfig,
	features config.FeatureFlags,
) *ReservationService {
	return &ReservationService{
		txm:             txm,
		reservationRepo: rr,
		resourceRepo:    resr,
		unitRepo:        ur,
		metadataRepo:    mr,
		permRepo:        pr,
		openings:        openings,
		dispatcher:      dispatcher,
		cfg:             cfg,
		features:        features,
		now:             time.Now,
	}
}

// SetClock はテスト用に現在時刻の供給元を差し替える
func (s *ReservationService) SetClock(now func() time.Time) {
	s.now = now
}

// LoadChecker はユーザーの認可スナップショットを読み込みCheckerを返す
func (s *ReservationService) LoadChecker(ctx context.Context, userID string) (*permission.Checker, error) {
	snap, err := s.permRepo.LoadSnapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("認可スナップショットの読み込みに失敗: %w", err)
	}
	return permission.NewChecker(snap), nil
}

// ReservationInput は作成・更新の共通入力
type ReservationInput struct {
	ResourceID string
	Begin      time.Time
	End        time.Time
	// UserID は予約の所有者。nilならアクター自身
	UserID     *string
	StaffEvent bool
	AccessCode string
	Comments   string
	// Fields はメタデータセットで正規化される予約者・イベントフィールド
	Fields map[string]string
}

// CreateReservation は新しい予約を作成する
func (s *ReservationService) CreateReservation(ctx context.Context, checker *permission.Checker, input ReservationInput) (*reservation.Reservation, error) {
	res, u, err := s.loadResourceAndUnit(ctx, input.ResourceID)
	if err != nil {
		return nil, err
	}

	rsv, err := s.buildReservation(ctx, checker, res, input)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TransactionDeadline)
	defer cancel()

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.lockResource(ctx, tx, res.ID); err != nil {
		return nil, err
	}

	if err := s.validateReservation(ctx, tx, checker, res, u, rsv, nil); err != nil {
		s.countMutation("create", outcomeOf(err))
		return nil, err
	}

	rsv.State = reservation.InitialState(reservation.InitialStateInput{
		NeedManualConfirmation: res.NeedManualConfirmation,
		CanBypassConfirmation:  checker.IsAdminOf(res) || checker.Has(res, permission.CanBypassManualConfirmation),
		HasRentProduct:         s.hasRentProduct(res),
		CanBypassPayment:       checker.IsAdminOf(res) || checker.Has(res, permission.CanBypassPayment),
	})

	if rsv.State == reservation.StateConfirmed {
		if err := s.ensureAccessCode(rsv, res); err != nil {
			return nil, err
		}
	}

	now := s.now()
	rsv.CreatedAt = now
	rsv.ModifiedAt = now

	if err := s.reservationRepo.Create(ctx, tx, rsv); err != nil {
		s.countMutation("create", outcomeOf(err))
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		s.countMutation("create", "error")
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	s.countMutation("create", "success")

	s.emitCreateEvents(ctx, rsv, res)
	return rsv, nil
}

// UpdateReservation は既存予約の時刻・フィールド・状態を更新する
func (s *ReservationService) UpdateReservation(ctx context.Context, checker *permission.Checker, id string, input ReservationInput, targetState reservation.State) (*reservation.Reservation, error) {
	existing, err := s.getReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	res, u, err := s.loadResourceAndUnit(ctx, existing.ResourceID)
	if err != nil {
		return nil, err
	}

	if existing.State.IsTerminal() {
		return nil, apperror.New(apperror.KindStateTransitionIllegal, "終端状態の予約は変更できません")
	}
	actorID := checker.User().ID
	if !existing.IsOwnedBy(actorID) && !checker.IsAdminOf(res) && !checker.Has(res, permission.CanModifyReservations) {
		return nil, apperror.New(apperror.KindPermissionDenied, "この予約を編集する権限がありません")
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TransactionDeadline)
	defer cancel()

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.lockResource(ctx, tx, res.ID); err != nil {
		return nil, err
	}

	// ロック待ちの間に別トランザクションが状態を変えていることがある。
	// 行ロック付きで読み直し、キャンセル済みの予約を上書きで復活させない
	current, err := s.getReservationForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.State.IsTerminal() {
		return nil, apperror.New(apperror.KindStateTransitionIllegal, "終端状態の予約は変更できません")
	}

	updated := *current
	updated.Begin = input.Begin.UTC()
	updated.End = input.End.UTC()
	updated.StaffEvent = input.StaffEvent
	updated.Comments = input.Comments
	updated.AccessCode = input.AccessCode
	if input.UserID != nil {
		updated.UserID = input.UserID
	}
	if err := s.applyMetadata(ctx, res, &updated, input.Fields); err != nil {
		return nil, err
	}

	if err := s.validateReservation(ctx, tx, checker, res, u, &updated, current); err != nil {
		s.countMutation("update", outcomeOf(err))
		return nil, err
	}

	var events []notification.Event
	if targetState != "" && targetState != current.State {
		events, err = s.applyTransition(&updated, current.State, targetState, checker, res, false)
		if err != nil {
			s.countMutation("update", outcomeOf(err))
			return nil, err
		}
	}

	updated.ModifiedAt = s.now()
	if err := s.reservationRepo.Update(ctx, tx, &updated); err != nil {
		s.countMutation("update", outcomeOf(err))
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		s.countMutation("update", "error")
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	s.countMutation("update", "success")

	s.dispatchAll(ctx, events)
	return &updated, nil
}

// CancelReservation は予約をキャンセル（ソフトデリート）する
// 既にキャンセル済みの場合は何もせず成功を返す
func (s *ReservationService) CancelReservation(ctx context.Context, checker *permission.Checker, id string) (*reservation.Reservation, error) {
	existing, err := s.getReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.State == reservation.StateCancelled {
		return existing, nil
	}
	return s.TransitionState(ctx, checker, id, reservation.StateCancelled, false)
}

// TransitionState は予約の状態遷移を適用する
// paymentSignal は外部決済アダプターからの呼び出しであることを示す
func (s *ReservationService) TransitionState(ctx context.Context, checker *permission.Checker, id string, target reservation.State, paymentSignal bool) (*reservation.Reservation, error) {
	existing, err := s.getReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.resourceRepo.GetByID(ctx, existing.ResourceID)
	if err != nil {
		return nil, s.mapResourceErr(err)
	}
	if existing.State == target {
		return existing, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TransactionDeadline)
	defer cancel()

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.lockResource(ctx, tx, res.ID); err != nil {
		return nil, err
	}

	// ロック取得後に行ロック付きで再読込して競合遷移を防ぐ
	current, err := s.getReservationForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.State == target {
		return current, nil
	}

	updated := *current
	events, err := s.applyTransition(&updated, current.State, target, checker, res, paymentSignal)
	if err != nil {
		s.countMutation("transition", outcomeOf(err))
		return nil, err
	}

	updated.ModifiedAt = s.now()
	if err := s.reservationRepo.Update(ctx, tx, &updated); err != nil {
		s.countMutation("transition", outcomeOf(err))
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		s.countMutation("transition", "error")
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	s.countMutation("transition", "success")

	s.dispatchAll(ctx, events)
	return &updated, nil
}

// applyTransition は状態機械を適用し、発行すべきイベントを返す
func (s *ReservationService) applyTransition(rsv *reservation.Reservation, from, to reservation.State, checker *permission.Checker, res *resource.Resource, paymentSignal bool) ([]notification.Event, error) {
	tc := reservation.TransitionContext{
		IsOwner:       checker != nil && rsv.IsOwnedBy(checker.User().ID),
		IsAdmin:       checker != nil && checker.IsAdminOf(res),
		CanApprove:    checker != nil && (checker.IsAdminOf(res) || checker.Has(res, permission.CanApproveReservation)),
		PaymentSignal: paymentSignal,
	}
	if err := reservation.CheckTransition(from, to, tc); err != nil {
		return nil, err
	}

	rsv.State = to
	var events []notification.Event
	switch to {
	case reservation.StateConfirmed:
		if from == reservation.StateRequested && checker != nil {
			approver := checker.User().ID
			rsv.ApproverID = &approver
		}
		if err := s.ensureAccessCode(rsv, res); err != nil {
			return nil, err
		}
		events = append(events, s.event(notification.KindReservationConfirmed, rsv))
		if res.IsAccessCodeEnabled() {
			events = append(events, s.event(notification.KindReservationCreatedWithCode, rsv))
		}
	case reservation.StateDenied:
		if from == reservation.StateRequested && checker != nil {
			approver := checker.User().ID
			rsv.ApproverID = &approver
		}
		events = append(events, s.event(notification.KindReservationDenied, rsv))
	case reservation.StateCancelled:
		events = append(events, s.event(notification.KindReservationCancelled, rsv))
	}
	return events, nil
}

// GetReservation はIDから予約を取得する
func (s *ReservationService) GetReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.getReservation(ctx, id)
}

// BuildView はアクターの権限で絞った予約ビューを組み立てる
func (s *ReservationService) BuildView(ctx context.Context, checker *permission.Checker, rsv *reservation.Reservation) (ReservationView, error) {
	res, err := s.resourceRepo.GetByID(ctx, rsv.ResourceID)
	if err != nil {
		return ReservationView{}, s.mapResourceErr(err)
	}
	return BuildReservationView(checker, res, rsv), nil
}

// ListReservations はフィルターに一致する予約一覧を返す
// 管理者専用フィルターの権限チェックは呼び出し側（ハンドラー）で済んでいる前提
func (s *ReservationService) ListReservations(ctx context.Context, filter reservation.ListFilter) ([]*reservation.Reservation, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if !filter.IncludePast && filter.Start == nil {
		now := s.now()
		filter.Start = &now
	}
	return s.reservationRepo.List(ctx, filter)
}

// SweepExpiredWaiting はTTLを超過した waiting_for_payment 予約を denied に遷移させる
// 候補ごとにリソース行ロックを取り直す
func (s *ReservationService) SweepExpiredWaiting(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.PaymentWaitingTTL)
	expired, err := s.reservationRepo.ListExpiredWaiting(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("期限切れ支払い待ち予約の取得に失敗: %w", err)
	}

	count := 0
	for _, rsv := range expired {
		if err := s.sweepOne(ctx, rsv); err != nil {
			logger.Warn("支払い待ち予約の整理に失敗",
				zap.String("reservation_id", rsv.ID), zap.Error(err))
			continue
		}
		count++
		if m := metrics.Get(); m != nil {
			m.SweptReservationsTotal.Inc()
		}
	}
	return count, nil
}

func (s *ReservationService) sweepOne(ctx context.Context, rsv *reservation.Reservation) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TransactionDeadline)
	defer cancel()

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.lockResource(ctx, tx, rsv.ResourceID); err != nil {
		return err
	}
	current, err := s.getReservationForUpdate(ctx, tx, rsv.ID)
	if err != nil {
		return err
	}
	if current.State != reservation.StateWaitingForPayment {
		return nil
	}

	updated := *current
	updated.State = reservation.StateDenied
	updated.ModifiedAt = s.now()
	if err := s.reservationRepo.Update(ctx, tx, &updated); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.dispatchAll(ctx, []notification.Event{s.event(notification.KindReservationDenied, &updated)})
	return nil
}

// --- 内部ヘルパー ---

func (s *ReservationService) loadResourceAndUnit(ctx context.Context, resourceID string) (*resource.Resource, *unit.Unit, error) {
	res, err := s.resourceRepo.GetByID(ctx, resourceID)
	if err != nil {
		return nil, nil, s.mapResourceErr(err)
	}
	u, err := s.unitRepo.GetByID(ctx, res.UnitID)
	if err != nil {
		if errors.Is(err, unit.ErrUnitNotFound) {
			return nil, nil, apperror.New(apperror.KindNotFound, unit.ErrUnitNotFound.Error())
		}
		return nil, nil, fmt.Errorf("ユニット取得に失敗: %w", err)
	}
	return res, u, nil
}

func (s *ReservationService) getReservation(ctx context.Context, id string) (*reservation.Reservation, error) {
	rsv, err := s.reservationRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, reservation.ErrReservationNotFound) {
			return nil, apperror.New(apperror.KindNotFound, reservation.ErrReservationNotFound.Error())
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return rsv, nil
}

func (s *ReservationService) getReservationForUpdate(ctx context.Context, tx transaction.Tx, id string) (*reservation.Reservation, error) {
	rsv, err := s.reservationRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		if errors.Is(err, reservation.ErrReservationNotFound) {
			return nil, apperror.New(apperror.KindNotFound, reservation.ErrReservationNotFound.Error())
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	return rsv, nil
}

func (s *ReservationService) mapResourceErr(err error) error {
	if errors.Is(err, resource.ErrResourceNotFound) {
		return apperror.New(apperror.KindNotFound, resource.ErrResourceNotFound.Error())
	}
	return fmt.Errorf("リソース取得に失敗: %w", err)
}

func (s *ReservationService) buildReservation(ctx context.Context, checker *permission.Checker, res *resource.Resource, input ReservationInput) (*reservation.Reservation, error) {
	rsv := &reservation.Reservation{
		ResourceID: res.ID,
		Begin:      input.Begin.UTC(),
		End:        input.End.UTC(),
		StaffEvent: input.StaffEvent,
		AccessCode: input.AccessCode,
		Comments:   input.Comments,
		Language:   checker.User().PreferredLanguage,
	}
	if input.UserID != nil {
		rsv.UserID = input.UserID
	} else if actorID := checker.User().ID; actorID != "" {
		rsv.UserID = &actorID
	}
	if err := s.applyMetadata(ctx, res, rsv, input.Fields); err != nil {
		return nil, err
	}
	return rsv, nil
}

// applyMetadata はメタデータセットで入力フィールドを正規化して書き込む
// 未対応フィールドは黙って落ちる
func (s *ReservationService) applyMetadata(ctx context.Context, res *resource.Resource, rsv *reservation.Reservation, fields map[string]string) error {
	set, err := s.metadataSetFor(ctx, res)
	if err != nil {
		return err
	}
	rsv.ApplyFieldMap(set.Normalize(fields))
	return nil
}

func (s *ReservationService) metadataSetFor(ctx context.Context, res *resource.Resource) (*reservation.MetadataSet, error) {
	if res.MetadataSetID == nil {
		return nil, nil
	}
	set, err := s.metadataRepo.GetSetByID(ctx, *res.MetadataSetID)
	if err != nil {
		if errors.Is(err, reservation.ErrMetadataSetNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("メタデータセット取得に失敗: %w", err)
	}
	return set, nil
}

func (s *ReservationService) hasRentProduct(res *resource.Resource) bool {
	return s.features.PaymentsEnabled && res.MinPrice != nil && *res.MinPrice > 0
}

// ensureAccessCode は confirmed 到達時点でアクセスコードを保証する
// 既に設定済みなら生成しない。denied / cancelled では決して生成しない
func (s *ReservationService) ensureAccessCode(rsv *reservation.Reservation, res *resource.Resource) error {
	if !res.IsAccessCodeEnabled() {
		rsv.AccessCode = ""
		return nil
	}
	if rsv.AccessCode != "" {
		return nil
	}
	code, err := accesscode.Generate(res.AccessCodeType)
	if err != nil {
		return fmt.Errorf("アクセスコード生成に失敗: %w", err)
	}
	rsv.AccessCode = code
	return nil
}

func (s *ReservationService) lockResource(ctx context.Context, tx transaction.Tx, resourceID string) error {
	start := time.Now()
	err := s.resourceRepo.LockForUpdate(ctx, tx, resourceID)
	if m := metrics.Get(); m != nil {
		m.ResourceLockDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("リソースロック取得に失敗: %w", err)
	}
	return nil
}

func (s *ReservationService) emitCreateEvents(ctx context.Context, rsv *reservation.Reservation, res *resource.Resource) {
	var events []notification.Event
	switch rsv.State {
	case reservation.StateRequested:
		events = append(events,
			s.event(notification.KindReservationRequested, rsv),
			s.event(notification.KindReservationRequestedOfficial, rsv),
		)
	case reservation.StateConfirmed:
		events = append(events, s.event(notification.KindReservationCreated, rsv))
		if res.IsAccessCodeEnabled() {
			events = append(events, s.event(notification.KindReservationCreatedWithCode, rsv))
		}
	}
	s.dispatchAll(ctx, events)
}

func (s *ReservationService) event(kind notification.Kind, rsv *reservation.Reservation) notification.Event {
	return notification.Event{Kind: kind, ReservationID: rsv.ID, Language: rsv.Language}
}

// dispatchAll はコミット済みの状態変更に対するイベントを発行する
// 発行失敗はログに留める（ノーティファイア側の再送・重複排除が前提）
func (s *ReservationService) dispatchAll(ctx context.Context, events []notification.Event) {
	for _, ev := range events {
		if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
			logger.Warn("通知イベントの発行に失敗",
				zap.String("kind", string(ev.Kind)),
				zap.String("reservation_id", ev.ReservationID),
				zap.Error(err))
		}
	}
}

func (s *ReservationService) countMutation(operation, outcome string) {
	if m := metrics.Get(); m != nil {
		m.ReservationsTotal.WithLabelValues(operation, outcome).Inc()
	}
}

func outcomeOf(err error) string {
	switch apperror.KindOf(err) {
	case apperror.KindOverlapConflict:
		return "conflict"
	case apperror.KindInternal:
		return "error"
	default:
		return "rejected"
	}
}
