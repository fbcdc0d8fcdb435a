// Package accesscode はドアピンコードの生成と検証を提供する
package accesscode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
)

// Type はリソースのアクセスコード種別を表す
type Type string

const (
	TypeNone Type = "none"
	TypePIN4 Type = "pin4"
	TypePIN6 Type = "pin6"
)

var (
	ErrUnknownType   = errors.New("不明なアクセスコード種別です")
	ErrInvalidFormat = errors.New("アクセスコードの形式が不正です")
	ErrNotAllowed    = errors.New("このリソースではアクセスコードを使用できません")
)

var pinPatterns = map[Type]*regexp.Regexp{
	TypePIN4: regexp.MustCompile(`^\d{4}$`),
	TypePIN6: regexp.MustCompile(`^\d{6}$`),
}

// Length は種別ごとのコード桁数を返す（noneは0）
func Length(t Type) int {
	switch t {
	case TypePIN4:
		return 4
	case TypePIN6:
		return 6
	default:
		return 0
	}
}

// Generate は暗号論的乱数で指定種別のコードを生成する
// TypeNoneに対しては空文字列を返す
func Generate(t Type) (string, error) {
	n := Length(t)
	if n == 0 {
		if t == TypeNone {
			return "", nil
		}
		return "", ErrUnknownType
	}
	code := make([]byte, n)
	for i := range code {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("乱数生成に失敗: %w", err)
		}
		code[i] = byte('0' + d.Int64())
	}
	return string(code), nil
}

// Validate はコードが種別の形式に一致するかを検証する
// 空文字列はどの種別でも許容される（未生成を表す）
func Validate(code string, t Type) error {
	if code == "" {
		return nil
	}
	if t == TypeNone {
		return ErrNotAllowed
	}
	pattern, ok := pinPatterns[t]
	if !ok {
		return ErrUnknownType
	}
	if !pattern.MatchString(code) {
		return ErrInvalidFormat
	}
	return nil
}
