// Package apperror は呼び出し側に公開するエラー種別を定義する
//
// Kindは機械可読な安定タグ、Messageはローカライズ可能な人間向け文字列。
package apperror

import (
	"errors"
	"net/http"
)

// Kind はエラー種別の安定タグを表す
type Kind string

const (
	KindPermissionDenied       Kind = "permission_denied"
	KindStateTransitionIllegal Kind = "state_transition_illegal"
	KindOverlapConflict        Kind = "overlap_conflict"
	KindTimePast               Kind = "time_past"
	KindMultiDay               Kind = "multi_day"
	KindOutsideOpeningHours    Kind = "outside_opening_hours"
	KindSlotMisalignment       Kind = "slot_misalignment"
	KindAdvanceWindowViolation Kind = "advance_window_violation"
	KindTooLong                Kind = "too_long"
	KindTooShort               Kind = "too_short"
	KindQuotaExceeded          Kind = "quota_exceeded"
	KindMissingRequiredField   Kind = "missing_required_field"
	KindFieldNotAllowed        Kind = "field_not_allowed"
	KindNotFound               Kind = "not_found"
	KindPaymentRequired        Kind = "payment_required"
	KindPaymentFailed          Kind = "payment_failed"
	KindInternal               Kind = "internal"
)

// Error は種別タグ付きのドメインエラー
type Error struct {
	Kind    Kind
	Field   string // missing_required_field / field_not_allowed の対象フィールド名
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return string(e.Kind) + " (" + e.Field + "): " + e.Message
	}
	return string(e.Kind) + ": " + e.Message
}

// New は新しいErrorを作成する
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewField はフィールド名付きのErrorを作成する
func NewField(kind Kind, field, message string) *Error {
	return &Error{Kind: kind, Field: field, Message: message}
}

// KindOf はエラーからKindを取り出す。Error以外はKindInternalを返す
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is はerrが指定Kindのエラーかを返す
func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// httpStatus はKindからHTTPステータスへの対応表
// overlap_conflict は後方互換のため400ではなく409を採用する
var httpStatus = map[Kind]int{
	KindPermissionDenied:       http.StatusForbidden,
	KindStateTransitionIllegal: http.StatusBadRequest,
	KindOverlapConflict:        http.StatusConflict,
	KindTimePast:               http.StatusBadRequest,
	KindMultiDay:               http.StatusBadRequest,
	KindOutsideOpeningHours:    http.StatusBadRequest,
	KindSlotMisalignment:       http.StatusBadRequest,
	KindAdvanceWindowViolation: http.StatusBadRequest,
	KindTooLong:                http.StatusBadRequest,
	KindTooShort:               http.StatusBadRequest,
	KindQuotaExceeded:          http.StatusBadRequest,
	KindMissingRequiredField:   http.StatusBadRequest,
	KindFieldNotAllowed:        http.StatusBadRequest,
	KindNotFound:               http.StatusNotFound,
	KindPaymentRequired:        http.StatusPaymentRequired,
	KindPaymentFailed:          http.StatusConflict,
	KindInternal:               http.StatusInternalServerError,
}

// HTTPStatus はKindに対応するHTTPステータスコードを返す
func HTTPStatus(kind Kind) int {
	if status, ok := httpStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}
