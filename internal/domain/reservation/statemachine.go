package reservation

import (
	"github.com/sanosuguru/go-space-reservation/internal/domain/apperror"
)

// TransitionContext は状態遷移時のアクター属性
type TransitionContext struct {
	// IsOwner はアクターが予約の所有者か
	IsOwner bool
	// IsAdmin はアクターがリソース管理者か
	IsAdmin bool
	// CanApprove はアクターが can_approve_reservation を持つか
	CanApprove bool
	// PaymentSignal は外部決済アダプターからの遷移シグナルか
	PaymentSignal bool
}

// InitialStateInput は作成時の初期状態決定の入力
type InitialStateInput struct {
	NeedManualConfirmation bool
	CanBypassConfirmation  bool
	HasRentProduct         bool
	CanBypassPayment       bool
}

// InitialState は作成時に割り当てる初期状態を返す
func InitialState(in InitialStateInput) State {
	if in.NeedManualConfirmation && !in.CanBypassConfirmation {
		return StateRequested
	}
	if in.HasRentProduct && !in.CanBypassPayment {
		return StateWaitingForPayment
	}
	return StateConfirmed
}

// CheckTransition は状態遷移の可否を判定する純関数
//
// 遷移の形が許可表に無い場合は state_transition_illegal、
// 形は合法だがアクターに権限が無い場合は permission_denied を返す。
// 同一状態への遷移は呼び出し側で no-op として処理する。
func CheckTransition(from, to State, tc TransitionContext) error {
	if from.IsTerminal() {
		return apperror.New(apperror.KindStateTransitionIllegal, "終端状態の予約は変更できません")
	}

	switch {
	case from == StateRequested && to == StateConfirmed,
		from == StateRequested && to == StateDenied:
		if !tc.CanApprove {
			return apperror.New(apperror.KindPermissionDenied, "予約を承認する権限がありません")
		}
		return nil

	case from == StateWaitingForPayment && to == StateConfirmed:
		if !tc.PaymentSignal {
			return apperror.New(apperror.KindPaymentRequired, "支払い完了シグナルが必要です")
		}
		return nil

	case from == StateWaitingForPayment && to == StateCancelled,
		from == StateWaitingForPayment && to == StateDenied:
		// 支払い失敗・タイムアウト、またはユーザー自身の取り下げ
		if !tc.PaymentSignal && !tc.IsOwner && !tc.IsAdmin {
			return apperror.New(apperror.KindPermissionDenied, "この予約を取り消す権限がありません")
		}
		return nil

	case from == StateConfirmed && to == StateCancelled,
		from == StateRequested && to == StateCancelled:
		if !tc.IsOwner && !tc.IsAdmin {
			return apperror.New(apperror.KindPermissionDenied, "この予約をキャンセルする権限がありません")
		}
		return nil
	}

	return apperror.New(apperror.KindStateTransitionIllegal, "許可されていない状態遷移です")
}
