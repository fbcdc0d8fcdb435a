// Package notification はコアが外部ノーティファイアへ公開するイベント契約を定義する
//
// テンプレートの描画・メール/SMS配送・リトライは外部コラボレーターの責務。
// コアは状態変更を永続化した後にイベントを発行する。同一イベントの再発行は
// 許容され、重複排除はノーティファイア側で行う。
package notification

import "context"

// Kind は発行されるイベント種別
type Kind string

const (
	KindReservationRequested         Kind = "reservation_requested"
	KindReservationRequestedOfficial Kind = "reservation_requested_official"
	KindReservationConfirmed         Kind = "reservation_confirmed"
	KindReservationDenied            Kind = "reservation_denied"
	KindReservationCancelled         Kind = "reservation_cancelled"
	KindReservationCreated           Kind = "reservation_created"
	KindReservationCreatedWithCode   Kind = "reservation_created_with_access_code"
)

// Event はノーティファイアへ渡す型付きイベント
type Event struct {
	Kind          Kind   `json:"kind"`
	ReservationID string `json:"reservation_id"`
	// Language は通知言語のヒント（空なら既定言語）
	Language string `json:"language,omitempty"`
}

// Dispatcher はアウトバウンドチャネルのインターフェース
type Dispatcher interface {
	// Dispatch はイベントを発行する。配送保証は持たない
	Dispatch(ctx context.Context, event Event) error
}

// Noop は通知チャネル無効時のディスパッチャー
type Noop struct{}

// Dispatch は何もしない
func (Noop) Dispatch(ctx context.Context, event Event) error { return nil }
