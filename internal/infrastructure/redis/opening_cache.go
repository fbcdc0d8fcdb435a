package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-space-reservation/internal/domain/opening"
	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

type cachedInterval struct {
	Date      string    `json:"date"`
	OpensUTC  time.Time `json:"opens_utc"`
	ClosesUTC time.Time `json:"closes_utc"`
}

// OpeningCache は解決済み開館インターバルの読み取りキャッシュ
//
// キーはリソースと日付範囲の組。再計算時はリソース単位でまとめて
// 無効化する（範囲ごとのキーを個別に消さずにバージョンを進める）。
type OpeningCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOpeningCache は新しいOpeningCacheインスタンスを作成する
func NewOpeningCache(client *redis.Client, ttl time.Duration) *OpeningCache {
	return &OpeningCache{client: client, ttl: ttl}
}

// Get は範囲のインターバルをキャッシュから取得する
func (c *OpeningCache) Get(ctx context.Context, resourceID string, from, to timeutil.Date) ([]opening.Interval, bool, error) {
	key, err := c.rangeKey(ctx, resourceID, from, to)
	if err != nil {
		return nil, false, err
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	var cached []cachedInterval
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, fmt.Errorf("キャッシュの解釈に失敗: %w", err)
	}
	intervals := make([]opening.Interval, 0, len(cached))
	for _, ci := range cached {
		d, err := timeutil.ParseDate(ci.Date)
		if err != nil {
			return nil, false, err
		}
		intervals = append(intervals, opening.Interval{
			ResourceID: resourceID,
			Date:       d,
			OpensUTC:   ci.OpensUTC,
			ClosesUTC:  ci.ClosesUTC,
		})
	}
	return intervals, true, nil
}

// Set は範囲のインターバルをキャッシュに保存する
func (c *OpeningCache) Set(ctx context.Context, resourceID string, from, to timeutil.Date, intervals []opening.Interval) error {
	key, err := c.rangeKey(ctx, resourceID, from, to)
	if err != nil {
		return err
	}
	cached := make([]cachedInterval, 0, len(intervals))
	for _, iv := range intervals {
		cached = append(cached, cachedInterval{
			Date:      iv.Date.String(),
			OpensUTC:  iv.OpensUTC,
			ClosesUTC: iv.ClosesUTC,
		})
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("キャッシュの直列化に失敗: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はリソースのキャッシュをまとめて無効化する
// バージョンキーを進めることで過去の範囲キーを全て迷子にする
func (c *OpeningCache) Invalidate(ctx context.Context, resourceID string) error {
	if err := c.client.Incr(ctx, c.versionKey(resourceID)).Err(); err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *OpeningCache) rangeKey(ctx context.Context, resourceID string, from, to timeutil.Date) (string, error) {
	version, err := c.client.Get(ctx, c.versionKey(resourceID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("キャッシュバージョン取得に失敗: %w", err)
	}
	return fmt.Sprintf("opening:%s:v%d:%s:%s", resourceID, version, from, to), nil
}

func (c *OpeningCache) versionKey(resourceID string) string {
	return fmt.Sprintf("opening:version:%s", resourceID)
}
