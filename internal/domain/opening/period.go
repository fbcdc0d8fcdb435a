package opening

import (
	"time"

	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

// Period は開館スケジュールの期間を表す
// リソースかユニットのどちらか一方（両方・どちらも無しは不正）に属する
type Period struct {
	ID         string
	ResourceID *string
	UnitID     *string
	Start      timeutil.Date // 開始日（含む）
	End        timeutil.Date // 終了日（含む）
	Name       string
	Closed     bool
	Days       []Day
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Day は期間内の曜日ごとの開館時刻を表す
// OpensまたはClosesがnil、あるいはClosedがtrueの場合その曜日は閉館
type Day struct {
	Weekday int // 月曜=0 .. 日曜=6
	Opens   *timeutil.TimeOfDay
	Closes  *timeutil.TimeOfDay
	Closed  bool
}

// Validate は期間の整合性を検証する
func (p *Period) Validate() error {
	if (p.ResourceID == nil) == (p.UnitID == nil) {
		return ErrInvalidOwner
	}
	if p.End.Before(p.Start) {
		return ErrInvalidDateRange
	}
	for _, d := range p.Days {
		if d.Weekday < 0 || d.Weekday > 6 {
			return ErrInvalidWeekday
		}
	}
	return nil
}

// ContainsDate は日付がこの期間に含まれるかを返す
func (p *Period) ContainsDate(d timeutil.Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// SpanDays は期間の日数を返す
func (p *Period) SpanDays() int {
	return p.Start.DaysUntil(p.End) + 1
}

// DayFor は指定曜日のDayを返す。定義が無ければnil
func (p *Period) DayFor(weekday int) *Day {
	for i := range p.Days {
		if p.Days[i].Weekday == weekday {
			return &p.Days[i]
		}
	}
	return nil
}

// IsOpen はこの曜日定義が開館を表すかを返す
func (d *Day) IsOpen() bool {
	return !d.Closed && d.Opens != nil && d.Closes != nil
}

// CheckOverlap は同一スコープの既存期間との日付重複を検証する
// 自分自身（同ID）は除外する
func CheckOverlap(existing []*Period, p *Period) error {
	for _, other := range existing {
		if other.ID == p.ID {
			continue
		}
		if !p.Start.After(other.End) && !p.End.Before(other.Start) {
			return ErrPeriodOverlap
		}
	}
	return nil
}
