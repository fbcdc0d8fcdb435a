package unit

import (
	"time"

	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

// Unit は物理的な施設（会場）を表すエンティティ
type Unit struct {
	ID            string
	Name          map[string]string // 言語コード → 名称
	TimeZone      string            // IANAタイムゾーン名
	StreetAddress string
	AddressZip    string
	Municipality  string
	Coordinates   *Point

	// ユニット既定の事前予約ウィンドウ（日数、リソース側が未設定の場合のフォールバック）
	ReservableMaxDaysInAdvance *int
	ReservableMinDaysInAdvance *int

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Point は位置座標（経度・緯度）
type Point struct {
	Lon float64
	Lat float64
}

// Location はユニットのタイムゾーンを返す
// 不明な場合はfallbackにフォールバックする
func (u *Unit) Location(fallback string) *time.Location {
	return timeutil.LoadLocation(u.TimeZone, fallback)
}

// LocalName は指定言語の名称を返す。無ければ "fi" → 任意の順に落ちる
func (u *Unit) LocalName(lang string) string {
	if n, ok := u.Name[lang]; ok && n != "" {
		return n
	}
	if n, ok := u.Name["fi"]; ok && n != "" {
		return n
	}
	for _, n := range u.Name {
		if n != "" {
			return n
		}
	}
	return u.ID
}

// UnitGroup は複数ユニットの管理グループを表す
type UnitGroup struct {
	ID         string
	Name       string
	MemberIDs  []string // 所属ユニットID
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// HasMember はユニットがこのグループに属するかを返す
func (g *UnitGroup) HasMember(unitID string) bool {
	for _, id := range g.MemberIDs {
		if id == unitID {
			return true
		}
	}
	return false
}
