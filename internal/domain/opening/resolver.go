package opening

import (
	"sort"
	"time"

	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

// Interval は1暦日分の実体化された開館インターバルを表す
// OpensUTC/ClosesUTC は半開区間 [opens, closes)
type Interval struct {
	ResourceID string
	Date       timeutil.Date // ユニットローカルの暦日
	OpensUTC   time.Time
	ClosesUTC  time.Time
}

// Resolve は期間と曜日定義から日付範囲 [from, to] の開館インターバルを導出する
//
// 優先順位: リソース期間 > ユニット期間。同スコープ内では期間の短い方が勝つ。
// 各日付について最初に該当した期間の曜日定義を採用し、閉館日は出力しない。
// closes <= opens の場合は翌暦日まで延長する（23:59への切り詰めはしない）。
func Resolve(resourceID string, periods []*Period, from, to timeutil.Date, loc *time.Location) []Interval {
	ordered := make([]*Period, len(periods))
	copy(ordered, periods)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := priorityOf(ordered[i]), priorityOf(ordered[j])
		if pi != pj {
			return pi > pj
		}
		return ordered[i].SpanDays() < ordered[j].SpanDays()
	})

	var result []Interval
	for d := from; !d.After(to); d = d.AddDays(1) {
		period := activePeriodFor(ordered, d)
		if period == nil || period.Closed {
			continue
		}
		day := period.DayFor(d.Weekday())
		if day == nil || !day.IsOpen() {
			continue
		}
		opens := day.Opens.On(d, loc)
		var closes time.Time
		if day.Closes.Minutes() <= day.Opens.Minutes() {
			// 深夜営業: 閉館時刻は翌暦日に属する
			closes = day.Closes.On(d.AddDays(1), loc)
		} else {
			closes = day.Closes.On(d, loc)
		}
		result = append(result, Interval{
			ResourceID: resourceID,
			Date:       d,
			OpensUTC:   opens.UTC(),
			ClosesUTC:  closes.UTC(),
		})
	}
	return result
}

func priorityOf(p *Period) int {
	if p.ResourceID != nil {
		return 1
	}
	return 0
}

func activePeriodFor(ordered []*Period, d timeutil.Date) *Period {
	for _, p := range ordered {
		if p.ContainsDate(d) {
			return p
		}
	}
	return nil
}

// Diff は実体化済みインターバルと再計算結果の差分を求める
// 戻り値は（削除すべき既存行, 追加すべき新規行）。一致行は触らない
func Diff(current, desired []Interval) (toDelete, toInsert []Interval) {
	key := func(iv Interval) string {
		return iv.Date.String() + "/" + iv.OpensUTC.UTC().Format(time.RFC3339) + "/" + iv.ClosesUTC.UTC().Format(time.RFC3339)
	}
	currentSet := make(map[string]Interval, len(current))
	for _, iv := range current {
		currentSet[key(iv)] = iv
	}
	desiredSet := make(map[string]Interval, len(desired))
	for _, iv := range desired {
		desiredSet[key(iv)] = iv
	}
	for k, iv := range currentSet {
		if _, ok := desiredSet[k]; !ok {
			toDelete = append(toDelete, iv)
		}
	}
	for _, iv := range desired {
		if _, ok := currentSet[key(iv)]; !ok {
			toInsert = append(toInsert, iv)
		}
	}
	return toDelete, toInsert
}
