package reservation

import (
	"time"
)

// State は予約の状態を表す
type State string

const (
	StateRequested         State = "requested"
	StateConfirmed         State = "confirmed"
	StateDenied            State = "denied"
	StateCancelled         State = "cancelled"
	StateWaitingForPayment State = "waiting_for_payment"
)

// OverlapStates は容量を占有する（重複判定に入る）状態
var OverlapStates = []State{StateRequested, StateConfirmed, StateWaitingForPayment}

// QuotaStates はユーザーごとの予約数上限に数える状態
// waiting_for_payment は重複には数えるがクォータには数えない
var QuotaStates = []State{StateRequested, StateConfirmed}

// IsTerminal は終端状態（cancelled / denied）かを返す
func (s State) IsTerminal() bool {
	return s == StateCancelled || s == StateDenied
}

// IsValid は既知の状態かを返す
func (s State) IsValid() bool {
	switch s {
	case StateRequested, StateConfirmed, StateDenied, StateCancelled, StateWaitingForPayment:
		return true
	}
	return false
}

// ReserverInfo は予約者の身元・連絡先ブロック
// どのフィールドが受理・必須になるかはリソースのメタデータセットが決める
type ReserverInfo struct {
	ReserverName          string
	ReserverID            string
	ReserverEmailAddress  string
	ReserverPhoneNumber   string
	ReserverAddressStreet string
	ReserverAddressZip    string
	ReserverAddressCity   string
	BillingAddressStreet  string
	BillingAddressZip     string
	BillingAddressCity    string
	Company               string
}

// EventInfo は予約対象イベントのメタデータ
type EventInfo struct {
	EventSubject         string
	EventDescription     string
	NumberOfParticipants *int
	HostName             string
}

// Reservation は予約エンティティを表す
// Begin/End はUTCで保持する半開区間 [Begin, End)
type Reservation struct {
	ID         string
	ResourceID string
	Begin      time.Time
	End        time.Time
	State      State

	// UserID は所有者。スタッフが他人のために作成した場合はその相手
	UserID *string
	// ApproverID は requested から遷移させた承認者
	ApproverID *string

	StaffEvent bool
	AccessCode string
	Comments   string

	Reserver ReserverInfo
	Event    EventInfo

	// Language は通知の言語ヒント
	Language string
	// OriginID はインポート元システムの行ID
	OriginID string

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// IsActive は容量を占有中（非終端かつ未終了）かを返す
func (r *Reservation) IsActive(now time.Time) bool {
	return !r.State.IsTerminal() && !r.End.Before(now)
}

// IsOwnedBy はuserIDが所有者かを返す
func (r *Reservation) IsOwnedBy(userID string) bool {
	return r.UserID != nil && *r.UserID == userID
}

// Validate は状態に依存しない構造的検証を行う
func (r *Reservation) Validate() error {
	if r.ResourceID == "" {
		return ErrResourceIDRequired
	}
	if !r.End.After(r.Begin) {
		return ErrInvalidTimeRange
	}
	if !r.State.IsValid() {
		return ErrUnknownState
	}
	return nil
}
