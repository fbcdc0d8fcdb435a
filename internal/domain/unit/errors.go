package unit

import "errors"

// Unit ドメインのエラー定義
var (
	ErrUnitNotFound      = errors.New("ユニットが見つかりません")
	ErrUnitGroupNotFound = errors.New("ユニットグループが見つかりません")
	// ユニットはリソースから保護参照されるため、リソースが残る限り削除できない
	ErrUnitProtected = errors.New("リソースが存在するためユニットを削除できません")
)
