// Package permission はユニット・ユニットグループ認可グラフ上の権限解決を提供する
package permission

// Permission はリソース単位の名前付き権限
type Permission string

const (
	CanApproveReservation              Permission = "can_approve_reservation"
	CanMakeReservations                Permission = "can_make_reservations"
	CanModifyReservations              Permission = "can_modify_reservations"
	CanIgnoreOpeningHours              Permission = "can_ignore_opening_hours"
	CanViewReservationAccessCode       Permission = "can_view_reservation_access_code"
	CanViewReservationExtraFields      Permission = "can_view_reservation_extra_fields"
	CanAccessReservationComments       Permission = "can_access_reservation_comments"
	CanViewReservationCateringOrders   Permission = "can_view_reservation_catering_orders"
	CanModifyReservationCateringOrders Permission = "can_modify_reservation_catering_orders"
	CanBypassManualConfirmation        Permission = "can_bypass_manual_confirmation"
	CanBypassPayment                   Permission = "can_bypass_payment"
	CanCreateReservationsForOtherUsers Permission = "can_create_reservations_for_other_users"
	CanIgnoreMaxReservationsPerUser    Permission = "can_ignore_max_reservations_per_user"
	CanIgnoreMaxPeriod                 Permission = "can_ignore_max_period"
	CanCreateStaffEvent                Permission = "can_create_staff_event"
)

// AllPermissions は定義済み権限の一覧
var AllPermissions = []Permission{
	CanApproveReservation,
	CanMakeReservations,
	CanModifyReservations,
	CanIgnoreOpeningHours,
	CanViewReservationAccessCode,
	CanViewReservationExtraFields,
	CanAccessReservationComments,
	CanViewReservationCateringOrders,
	CanModifyReservationCateringOrders,
	CanBypassManualConfirmation,
	CanBypassPayment,
	CanCreateReservationsForOtherUsers,
	CanIgnoreMaxReservationsPerUser,
	CanIgnoreMaxPeriod,
	CanCreateStaffEvent,
}

// Role はユニット上の認可レベル
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleViewer  Role = "viewer"
)

// RolePermissions はロールが暗黙に与える権限の固定表
//
// admin は全権限。manager は支払いバイパスを除く全権限。
// viewer は閲覧系のみ。表の内容は挙動の一部であり変更しないこと。
var RolePermissions = map[Role][]Permission{
	RoleAdmin: AllPermissions,
	RoleManager: {
		CanApproveReservation,
		CanMakeReservations,
		CanModifyReservations,
		CanIgnoreOpeningHours,
		CanViewReservationAccessCode,
		CanViewReservationExtraFields,
		CanAccessReservationComments,
		CanViewReservationCateringOrders,
		CanModifyReservationCateringOrders,
		CanBypassManualConfirmation,
		CanCreateReservationsForOtherUsers,
		CanIgnoreMaxReservationsPerUser,
		CanIgnoreMaxPeriod,
		CanCreateStaffEvent,
	},
	RoleViewer: {
		CanViewReservationAccessCode,
		CanViewReservationExtraFields,
		CanAccessReservationComments,
	},
}

// roleImplies はロールが権限を含むかを返す
func roleImplies(role Role, perm Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// User は権限解決の対象ユーザー
type User struct {
	ID                string
	IsSuperuser       bool
	IsGeneralAdmin    bool
	IsStaff           bool
	PreferredLanguage string
}

// IsAuthenticated はユーザーが認証済みかを返す
func (u User) IsAuthenticated() bool {
	return u.ID != ""
}

// UnitAuthorization は (ユーザー, ユニット, レベル) の認可行
type UnitAuthorization struct {
	UserID string
	UnitID string
	Level  Role
}

// UnitGroupAuthorization は (ユーザー, ユニットグループ, レベル) の認可行
// グループレベルは admin のみ
type UnitGroupAuthorization struct {
	UserID      string
	UnitGroupID string
	Level       Role
}

// Grant はユニットまたはリソースグループへの個別権限付与
// スコープはどちらか一方のみが設定される
type Grant struct {
	UserID          string
	Permission      Permission
	UnitID          string
	ResourceGroupID string
}
