package reservation

import "errors"

// Reservation ドメインのエラー定義
var (
	ErrReservationNotFound = errors.New("予約が見つかりません")
	ErrResourceIDRequired  = errors.New("リソースIDは必須です")
	ErrInvalidTimeRange    = errors.New("予約は開始後に終了しなければなりません")
	ErrUnknownState        = errors.New("不明な予約状態です")
	ErrMetadataSetNotFound = errors.New("メタデータセットが見つかりません")
)
