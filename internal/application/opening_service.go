package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-space-reservation/internal/config"
	"github.com/sanosuguru/go-space-reservation/internal/domain/apperror"
	"github.com/sanosuguru/go-space-reservation/internal/domain/opening"
	"github.com/sanosuguru/go-space-reservation/internal/domain/permission"
	"github.com/sanosuguru/go-space-reservation/internal/domain/resource"
	"github.com/sanosuguru/go-space-reservation/internal/domain/transaction"
	"github.com/sanosuguru/go-space-reservation/internal/domain/unit"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/metrics"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

// IntervalCache は解決済み開館インターバルのキャッシュ面
// 実装はRedis。キャッシュ不整合は再計算時の無効化で防ぐ
type IntervalCache interface {
	Get(ctx context.Context, resourceID string, from, to timeutil.Date) ([]opening.Interval, bool, error)
	Set(ctx context.Context, resourceID string, from, to timeutil.Date, intervals []opening.Interval) error
	Invalidate(ctx context.Context, resourceID string) error
}

// OpeningService は開館期間の管理と開館インターバルの実体化を司る
type OpeningService struct {
	txm          transaction.Manager
	periodRepo   opening.PeriodRepository
	intervalRepo opening.IntervalRepository
	resourceRepo resource.Repository
	unitRepo     unit.Repository
	cache        IntervalCache
	cfg          config.ReservationConfig
	now          func() time.Time
}

func NewOpeningService(
	txm transaction.Manager,
	pr opening.PeriodRepository,
	ir opening.IntervalRepository,
	resr resource.Repository,
	ur unit.Repository,
	cache IntervalCache,
	cfg config.ReservationConfig,
) *OpeningService {
	return &OpeningService{
		txm:          txm,
		periodRepo:   pr,
		intervalRepo: ir,
		resourceRepo: resr,
		unitRepo:     ur,
		cache:        cache,
		cfg:          cfg,
		now:          time.Now,
	}
}

// SetClock はテスト用に現在時刻の供給元を差し替える
func (s *OpeningService) SetClock(now func() time.Time) {
	s.now = now
}

// CreatePeriod は開館期間を作成し、影響リソースの開館インターバルを再計算する
func (s *OpeningService) CreatePeriod(ctx context.Context, checker *permission.Checker, p *opening.Period) error {
	if err := s.authorizePeriod(ctx, checker, p); err != nil {
		return err
	}
	if err := s.validatePeriod(ctx, p, ""); err != nil {
		return err
	}

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	p.CreatedAt = now
	p.ModifiedAt = now
	if err := s.periodRepo.Create(ctx, tx, p); err != nil {
		return fmt.Errorf("期間の作成に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}

	return s.recomputeAffected(ctx, p)
}

// UpdatePeriod は開館期間を置き換え、影響リソースを再計算する
func (s *OpeningService) UpdatePeriod(ctx context.Context, checker *permission.Checker, p *opening.Period) error {
	existing, err := s.periodRepo.GetByID(ctx, p.ID)
	if err != nil {
		if errors.Is(err, opening.ErrPeriodNotFound) {
			return apperror.New(apperror.KindNotFound, opening.ErrPeriodNotFound.Error())
		}
		return fmt.Errorf("期間の取得に失敗: %w", err)
	}
	if err := s.authorizePeriod(ctx, checker, existing); err != nil {
		return err
	}
	if err := s.validatePeriod(ctx, p, p.ID); err != nil {
		return err
	}

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	p.ModifiedAt = s.now()
	if err := s.periodRepo.Update(ctx, tx, p); err != nil {
		return fmt.Errorf("期間の更新に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}

	// 所属が変わった場合は新旧両方のスコープを再計算する
	if err := s.recomputeAffected(ctx, existing); err != nil {
		return err
	}
	return s.recomputeAffected(ctx, p)
}

// DeletePeriod は開館期間を削除し、影響リソースを再計算する
func (s *OpeningService) DeletePeriod(ctx context.Context, checker *permission.Checker, id string) error {
	existing, err := s.periodRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, opening.ErrPeriodNotFound) {
			return apperror.New(apperror.KindNotFound, opening.ErrPeriodNotFound.Error())
		}
		return fmt.Errorf("期間の取得に失敗: %w", err)
	}
	if err := s.authorizePeriod(ctx, checker, existing); err != nil {
		return err
	}

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.periodRepo.Delete(ctx, tx, id); err != nil {
		return fmt.Errorf("期間の削除に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}

	return s.recomputeAffected(ctx, existing)
}

// RecomputeResource はリソース1件の開館インターバルを再計算する
//
// リソース行ロック下で差分適用するため、同一リソースへの予約作成とは
// 直列化される。同じ入力に対して冪等。
func (s *OpeningService) RecomputeResource(ctx context.Context, resourceID string) error {
	res, err := s.resourceRepo.GetByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, resource.ErrResourceNotFound) {
			return apperror.New(apperror.KindNotFound, resource.ErrResourceNotFound.Error())
		}
		return fmt.Errorf("リソース取得に失敗: %w", err)
	}
	u, err := s.unitRepo.GetByID(ctx, res.UnitID)
	if err != nil {
		return fmt.Errorf("ユニット取得に失敗: %w", err)
	}
	loc := u.Location(s.cfg.DefaultTimeZone)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TransactionDeadline)
	defer cancel()

	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	if err := s.resourceRepo.LockForUpdate(ctx, tx, res.ID); err != nil {
		return fmt.Errorf("リソースロック取得に失敗: %w", err)
	}

	// 期間と既存インターバルはロック取得後に読む。先行する期間編集は
	// コミット済みなので、最後にロックを取った再計算が常に最新を見る
	periods, err := s.mergedPeriods(ctx, res)
	if err != nil {
		return err
	}
	from := timeutil.DateOf(s.now(), loc)
	to := from.AddDays(s.cfg.OpeningHorizonDays)
	desired := opening.Resolve(res.ID, periods, from, to, loc)

	current, err := s.intervalRepo.ListAll(ctx, tx, res.ID)
	if err != nil {
		return fmt.Errorf("既存インターバルの取得に失敗: %w", err)
	}
	toDelete, toInsert := opening.Diff(current, desired)
	if err := s.intervalRepo.ApplyDiff(ctx, tx, res.ID, toDelete, toInsert); err != nil {
		return fmt.Errorf("インターバル差分の適用に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}

	if m := metrics.Get(); m != nil {
		m.OpeningRecomputeTotal.WithLabelValues("success").Inc()
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, res.ID); err != nil {
			logger.Warn("開館時間キャッシュの無効化に失敗",
				zap.String("resource_id", res.ID), zap.Error(err))
		}
	}
	return nil
}

// RequestRecompute は管理者の手動リクエストで再計算を行う
func (s *OpeningService) RequestRecompute(ctx context.Context, checker *permission.Checker, resourceID string) error {
	res, err := s.resourceRepo.GetByID(ctx, resourceID)
	if err != nil {
		if errors.Is(err, resource.ErrResourceNotFound) {
			return apperror.New(apperror.KindNotFound, resource.ErrResourceNotFound.Error())
		}
		return fmt.Errorf("リソース取得に失敗: %w", err)
	}
	if !checker.IsAdminOfUnit(res.UnitID) {
		return apperror.New(apperror.KindPermissionDenied, "開館時間を再計算する権限がありません")
	}
	return s.RecomputeResource(ctx, resourceID)
}

// RecomputeUnit はユニット配下の全リソースを再計算する
func (s *OpeningService) RecomputeUnit(ctx context.Context, unitID string) error {
	resources, err := s.resourceRepo.ListByUnit(ctx, unitID)
	if err != nil {
		return fmt.Errorf("ユニット配下リソースの取得に失敗: %w", err)
	}
	for _, res := range resources {
		if err := s.RecomputeResource(ctx, res.ID); err != nil {
			return err
		}
	}
	return nil
}

// IntervalsForRange は解決済み開館インターバルを返す（ReservationServiceのOpeningReader実装）
func (s *OpeningService) IntervalsForRange(ctx context.Context, resourceID string, from, to time.Time, loc *time.Location) ([]ResolvedInterval, error) {
	fromDate := timeutil.DateOf(from, loc)
	toDate := timeutil.DateOf(to, loc)
	intervals, err := s.intervalsCached(ctx, resourceID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	out := make([]ResolvedInterval, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, ResolvedInterval{OpensUTC: iv.OpensUTC, ClosesUTC: iv.ClosesUTC})
	}
	return out, nil
}

// ListIntervals は日付範囲の開館インターバルをそのまま返す（API表示用）
func (s *OpeningService) ListIntervals(ctx context.Context, resourceID string, from, to timeutil.Date) ([]opening.Interval, error) {
	return s.intervalsCached(ctx, resourceID, from, to)
}

// ListPeriods はリソースの期間一覧を返す
func (s *OpeningService) ListPeriods(ctx context.Context, resourceID string) ([]*opening.Period, error) {
	return s.periodRepo.ListForResource(ctx, resourceID)
}

func (s *OpeningService) intervalsCached(ctx context.Context, resourceID string, from, to timeutil.Date) ([]opening.Interval, error) {
	if s.cache != nil {
		if cached, ok, err := s.cache.Get(ctx, resourceID, from, to); err == nil && ok {
			return cached, nil
		}
	}
	intervals, err := s.intervalRepo.ListForRange(ctx, resourceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("開館インターバルの取得に失敗: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, resourceID, from, to, intervals); err != nil {
			logger.Debug("開館時間キャッシュの書き込みに失敗",
				zap.String("resource_id", resourceID), zap.Error(err))
		}
	}
	return intervals, nil
}

// mergedPeriods はリソース期間とユニット期間を結合して返す
// 優先順位の解決はリゾルバーが行う
func (s *OpeningService) mergedPeriods(ctx context.Context, res *resource.Resource) ([]*opening.Period, error) {
	own, err := s.periodRepo.ListForResource(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("リソース期間の取得に失敗: %w", err)
	}
	unitPeriods, err := s.periodRepo.ListForUnit(ctx, res.UnitID)
	if err != nil {
		return nil, fmt.Errorf("ユニット期間の取得に失敗: %w", err)
	}
	return append(own, unitPeriods...), nil
}

// authorizePeriod は期間のスコープに対するユニット管理者権限を要求する
func (s *OpeningService) authorizePeriod(ctx context.Context, checker *permission.Checker, p *opening.Period) error {
	unitID := ""
	switch {
	case p.UnitID != nil:
		unitID = *p.UnitID
	case p.ResourceID != nil:
		res, err := s.resourceRepo.GetByID(ctx, *p.ResourceID)
		if err != nil {
			if errors.Is(err, resource.ErrResourceNotFound) {
				return apperror.New(apperror.KindNotFound, resource.ErrResourceNotFound.Error())
			}
			return fmt.Errorf("リソース取得に失敗: %w", err)
		}
		unitID = res.UnitID
	}
	if !checker.IsAdminOfUnit(unitID) {
		return apperror.New(apperror.KindPermissionDenied, "開館期間を管理する権限がありません")
	}
	return nil
}

// validatePeriod は構造検証と同一スコープ内の日付重複検証を行う
func (s *OpeningService) validatePeriod(ctx context.Context, p *opening.Period, excludeID string) error {
	if err := p.Validate(); err != nil {
		return apperror.New(apperror.KindFieldNotAllowed, err.Error())
	}
	var siblings []*opening.Period
	var err error
	if p.ResourceID != nil {
		siblings, err = s.periodRepo.ListForResource(ctx, *p.ResourceID)
	} else {
		siblings, err = s.periodRepo.ListForUnit(ctx, *p.UnitID)
	}
	if err != nil {
		return fmt.Errorf("既存期間の取得に失敗: %w", err)
	}
	if err := opening.CheckOverlap(siblings, p); err != nil {
		return apperror.New(apperror.KindOverlapConflict, err.Error())
	}
	return nil
}

// recomputeAffected は期間のスコープに応じて再計算対象を選ぶ
func (s *OpeningService) recomputeAffected(ctx context.Context, p *opening.Period) error {
	if p.ResourceID != nil {
		return s.RecomputeResource(ctx, *p.ResourceID)
	}
	if p.UnitID != nil {
		return s.RecomputeUnit(ctx, *p.UnitID)
	}
	return nil
}
