package resource

import (
	"time"

	"github.com/sanosuguru/go-space-reservation/internal/pkg/accesscode"
)

// MainType はリソースの大分類を表す
type MainType string

const (
	TypeSpace  MainType = "space"
	TypePerson MainType = "person"
	TypeItem   MainType = "item"
	TypeBerth  MainType = "berth"
)

// Authentication はリソース予約に要求される認証強度
type Authentication string

const (
	AuthNone   Authentication = "none"
	AuthWeak   Authentication = "weak"
	AuthStrong Authentication = "strong"
)

// Resource は予約可能な対象（部屋・桟橋・備品など）を表すエンティティ
type Resource struct {
	ID     string
	UnitID string // 所有ユニット（削除は保護される）
	Type   MainType
	Name   map[string]string

	// Reservable がfalseの場合、can_make_reservations 権限が必要
	Reservable bool
	// Public は一般公開されるかどうか
	Public bool

	MinPeriod time.Duration
	MaxPeriod *time.Duration
	SlotSize  time.Duration

	MaxReservationsPerUser *int

	// 事前予約ウィンドウ（日数）。nilならユニット既定にフォールバック
	ReservableMaxDaysInAdvance *int
	ReservableMinDaysInAdvance *int

	AccessCodeType         accesscode.Type
	NeedManualConfirmation bool
	MetadataSetID          *string

	MinPrice *int
	MaxPrice *int

	Authentication Authentication

	PurposeIDs       []string
	EquipmentIDs     []string
	ResourceGroupIDs []string

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// MaxAdvanceDays は有効な最大事前予約日数を返す（リソース優先、ユニットにフォールバック）
func (r *Resource) MaxAdvanceDays(unitDefault *int) *int {
	if r.ReservableMaxDaysInAdvance != nil {
		return r.ReservableMaxDaysInAdvance
	}
	return unitDefault
}

// MinAdvanceDays は有効な最小事前予約日数を返す
func (r *Resource) MinAdvanceDays(unitDefault *int) *int {
	if r.ReservableMinDaysInAdvance != nil {
		return r.ReservableMinDaysInAdvance
	}
	return unitDefault
}

// IsAccessCodeEnabled はアクセスコードを発行するリソースかを返す
func (r *Resource) IsAccessCodeEnabled() bool {
	return r.AccessCodeType != accesscode.TypeNone && r.AccessCodeType != ""
}

// InGroup はリソースが指定リソースグループに属するかを返す
func (r *Resource) InGroup(groupID string) bool {
	for _, id := range r.ResourceGroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}
