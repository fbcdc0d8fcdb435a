package resource

import "errors"

// Resource ドメインのエラー定義
var (
	ErrResourceNotFound = errors.New("リソースが見つかりません")
)
