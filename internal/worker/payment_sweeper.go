package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-space-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/logger"
)

// WaitingSweeper はTTL超過の支払い待ち予約を拒否へ送るインターフェース
type WaitingSweeper interface {
	SweepExpiredWaiting(ctx context.Context) (int, error)
}

// RunnerGuard は複数インスタンス時の単一実行ガード
type RunnerGuard interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (*redis.RunnerLock, error)
}

// PaymentSweeper は waiting_for_payment 予約の定期スイーパー
//
// 1周期ごとにRedisの実行ガードを取り、取れたインスタンスだけが掃く。
// 個々の予約の直列化はサービス側のリソース行ロックが担う。
type PaymentSweeper struct {
	service  WaitingSweeper
	guard    RunnerGuard
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

const sweeperLockKey = "payment-sweeper"

// NewPaymentSweeper は新しいスイーパーを作成
// guard はnilでもよい（単一インスタンス構成）
func NewPaymentSweeper(service WaitingSweeper, guard RunnerGuard, interval time.Duration) *PaymentSweeper {
	return &PaymentSweeper{
		service:  service,
		guard:    guard,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start はスイーパーを開始
func (s *PaymentSweeper) Start(ctx context.Context) {
	logger.Info("支払い待ち予約スイーパー開始", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("支払い待ち予約スイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			logger.Info("支払い待ち予約スイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止
func (s *PaymentSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *PaymentSweeper) sweep(ctx context.Context) {
	log := logger.Get()

	if s.guard != nil {
		lock, err := s.guard.AcquireLock(ctx, sweeperLockKey, s.interval)
		if err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				log.Debug("他インスタンスがスイープ中のためスキップ")
				return
			}
			log.Error("実行ガードの取得に失敗", zap.Error(err))
			return
		}
		defer func() {
			if err := lock.Release(ctx); err != nil {
				log.Warn("実行ガードの解放に失敗", zap.Error(err))
			}
		}()
	}

	count, err := s.service.SweepExpiredWaiting(ctx)
	if err != nil {
		log.Error("支払い待ち予約のスイープ失敗", zap.Error(err))
		return
	}
	if count > 0 {
		log.Info("期限切れ支払い待ち予約を拒否", zap.Int("count", count))
	} else {
		log.Debug("期限切れの支払い待ち予約なし")
	}
}
