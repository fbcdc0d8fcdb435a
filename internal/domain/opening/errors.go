package opening

import "errors"

// Opening ドメインのエラー定義
var (
	ErrInvalidOwner     = errors.New("期間はリソースかユニットのどちらか一方に属する必要があります")
	ErrInvalidDateRange = errors.New("期間は開始日から終了日の順でなければなりません")
	ErrInvalidWeekday   = errors.New("曜日は0〜6で指定してください")
	ErrPeriodOverlap    = errors.New("同じ日付に既に期間が存在します")
	ErrPeriodNotFound   = errors.New("期間が見つかりません")
)
