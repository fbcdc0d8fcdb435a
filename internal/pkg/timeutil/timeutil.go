// Package timeutil は予約コアの時刻プリミティブを提供する。
//
// 永続化される時刻はすべてUTC。開館時間との比較はリソースが属する
// ユニットのタイムゾーンの壁時計時刻で行う（DST境界でのずれ防止）。
package timeutil

import (
	"fmt"
	"time"
)

// LoadLocation はIANAタイムゾーン名からLocationを取得する
// 取得できない場合はfallbackを試し、それも失敗すればUTCを返す
func LoadLocation(name, fallback string) *time.Location {
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation(fallback); err == nil {
		return loc
	}
	return time.UTC
}

// LocalMidnight はtが属するローカル日付の0時を返す
func LocalMidnight(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// AddDaysMidnight はローカル日付でdays日後の0時を返す
func AddDaysMidnight(t time.Time, days int, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()+days, 0, 0, 0, 0, loc)
}

// SameLocalDate はa,bが同じローカル日付に属するかを返す
func SameLocalDate(a, b time.Time, loc *time.Location) bool {
	la, lb := a.In(loc), b.In(loc)
	ay, am, ad := la.Date()
	by, bm, bd := lb.Date()
	return ay == by && am == bm && ad == bd
}

// WallMinutesBetween はfromからtoまでの壁時計分数を返す
// 夏時間の切り替わりがあっても壁時計上の差分で数える
func WallMinutesBetween(from, to time.Time, loc *time.Location) int {
	lf, lt := from.In(loc), to.In(loc)
	fromMidnight := time.Date(lf.Year(), lf.Month(), lf.Day(), 0, 0, 0, 0, time.UTC)
	toMidnight := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
	days := int(toMidnight.Sub(fromMidnight).Hours() / 24)
	fromHM := lf.Hour()*60 + lf.Minute()
	toHM := lt.Hour()*60 + lt.Minute()
	return days*24*60 + toHM - fromHM
}

// IsAlignedToSlot は (t − opens) mod slotSize == 0 を壁時計時刻で判定する
// slotSizeが0以下の場合は常にtrue
func IsAlignedToSlot(t, opens time.Time, slotSize time.Duration, loc *time.Location) bool {
	slotMinutes := int(slotSize.Minutes())
	if slotMinutes <= 0 {
		return true
	}
	diff := WallMinutesBetween(opens, t, loc)
	if diff < 0 {
		return false
	}
	return diff%slotMinutes == 0
}

// Interval は半開区間 [Start, End) を表す
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps は2つの半開区間が重なるかを返す
// 背中合わせ（End == 相手のStart）は重なりではない
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains はotherがこの区間に完全に含まれるかを返す
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Duration は区間の長さを返す
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// IsValid は End > Start （長さゼロの区間は不正）を返す
func (iv Interval) IsValid() bool {
	return iv.End.After(iv.Start)
}

// Date はタイムゾーンに依存しない暦日を表す
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf はtのloc上の暦日を返す
func DateOf(t time.Time, loc *time.Location) Date {
	lt := t.In(loc)
	return Date{Year: lt.Year(), Month: lt.Month(), Day: lt.Day()}
}

// ParseDate は "2006-01-02" 形式の文字列をDateに変換する
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("不正な日付形式: %w", err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// Time はこの暦日のloc上の0時を返す
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// AddDays はdays日後の暦日を返す
func (d Date) AddDays(days int) Date {
	t := time.Date(d.Year, d.Month, d.Day+days, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Before はdがotherより前かを返す
func (d Date) Before(other Date) bool {
	return d.Time(time.UTC).Before(other.Time(time.UTC))
}

// After はdがotherより後かを返す
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// Equal は同じ暦日かを返す
func (d Date) Equal(other Date) bool {
	return d == other
}

// DaysUntil はdからotherまでの日数を返す（other < d なら負）
func (d Date) DaysUntil(other Date) int {
	return int(other.Time(time.UTC).Sub(d.Time(time.UTC)).Hours() / 24)
}

// Weekday は曜日を月曜=0..日曜=6で返す
func (d Date) Weekday() int {
	wd := int(d.Time(time.UTC).Weekday())
	// time.Weekdayは日曜=0なので月曜=0に合わせる
	return (wd + 6) % 7
}

// String は "2006-01-02" 形式の文字列を返す
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// TimeOfDay は壁時計の時刻（時・分）を表す
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay は "15:04" 形式の文字列をTimeOfDayに変換する
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("不正な時刻形式: %w", err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On はこの時刻を指定した暦日・タイムゾーン上の時点に変換する
func (td TimeOfDay) On(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, td.Hour, td.Minute, 0, 0, loc)
}

// Minutes は0時からの分数を返す
func (td TimeOfDay) Minutes() int {
	return td.Hour*60 + td.Minute
}

// String は "15:04" 形式の文字列を返す
func (td TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", td.Hour, td.Minute)
}
