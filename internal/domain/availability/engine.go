// Package availability は開館時間と既存予約から空き区間を計算する
package availability

import (
	"sort"
	"time"

	"github.com/sanosuguru/go-space-reservation/internal/pkg/timeutil"
)

// Booked は空き計算で考慮する既存予約の区間
type Booked struct {
	ReservationID string
	Interval      timeutil.Interval
}

// Query は空き区間計算の入力
type Query struct {
	// Range は検索範囲 [Start, End)
	Range timeutil.Interval
	// Opening はUTCに変換済みの開館インターバル（昇順）
	Opening []timeutil.Interval
	// Reservations は非終端状態の既存予約（順不同でよい）
	Reservations []Booked
	// MinDuration が正の場合、これ未満の空き区間は出力しない
	MinDuration time.Duration
	// ExcludeReservationID は移動・編集時に無視する予約ID
	ExcludeReservationID string
	// IncludeClosed がtrueなら開館時間を無視して範囲全体を母集合にする（管理者用）
	IncludeClosed bool
}

// FreeIntervals は空き区間を昇順で返す
//
// 各空き区間は (a) IncludeClosedでない限り開館インターバル内、
// (b) 除外指定を除く非終端予約と交差しない、(c) MinDuration以上、を満たす。
// 予約は半開区間 [begin, end) として扱い、背中合わせは重なりではない。
func FreeIntervals(q Query) []timeutil.Interval {
	bases := q.baseIntervals()
	if len(bases) == 0 {
		return nil
	}

	booked := make([]Booked, 0, len(q.Reservations))
	for _, b := range q.Reservations {
		if q.ExcludeReservationID != "" && b.ReservationID == q.ExcludeReservationID {
			continue
		}
		booked = append(booked, b)
	}
	sort.Slice(booked, func(i, j int) bool {
		return booked[i].Interval.Start.Before(booked[j].Interval.Start)
	})

	var result []timeutil.Interval
	for _, base := range bases {
		result = append(result, subtract(base, booked)...)
	}

	if q.MinDuration > 0 {
		filtered := result[:0]
		for _, iv := range result {
			if iv.Duration() >= q.MinDuration {
				filtered = append(filtered, iv)
			}
		}
		result = filtered
	}
	return result
}

// baseIntervals は母集合（開館インターバルを範囲に切り詰めたもの）を返す
func (q Query) baseIntervals() []timeutil.Interval {
	if q.IncludeClosed {
		if !q.Range.IsValid() {
			return nil
		}
		return []timeutil.Interval{q.Range}
	}
	var bases []timeutil.Interval
	for _, open := range q.Opening {
		clipped := clip(open, q.Range)
		if clipped.IsValid() {
			bases = append(bases, clipped)
		}
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i].Start.Before(bases[j].Start) })
	return bases
}

// clip はivをboundsに切り詰める
// 範囲開始をまたぐ予約が開始側を、範囲終了をまたぐ予約が終了側を削る動きは
// subtract側で同じ切り詰めとして現れる
func clip(iv, bounds timeutil.Interval) timeutil.Interval {
	start, end := iv.Start, iv.End
	if start.Before(bounds.Start) {
		start = bounds.Start
	}
	if end.After(bounds.End) {
		end = bounds.End
	}
	return timeutil.Interval{Start: start, End: end}
}

// subtract はbaseから予約済み区間を引いた残りを返す
func subtract(base timeutil.Interval, booked []Booked) []timeutil.Interval {
	var free []timeutil.Interval
	cursor := base.Start
	for _, b := range booked {
		if !b.Interval.Overlaps(timeutil.Interval{Start: cursor, End: base.End}) {
			continue
		}
		if b.Interval.Start.After(cursor) {
			free = append(free, timeutil.Interval{Start: cursor, End: b.Interval.Start})
		}
		if b.Interval.End.After(cursor) {
			cursor = b.Interval.End
		}
		if !cursor.Before(base.End) {
			return free
		}
	}
	if cursor.Before(base.End) {
		free = append(free, timeutil.Interval{Start: cursor, End: base.End})
	}
	return free
}

// IsFree は [begin, end) が完全な空きかを返す
func IsFree(q Query, begin, end time.Time) bool {
	want := timeutil.Interval{Start: begin, End: end}
	for _, iv := range FreeIntervals(q) {
		if iv.Contains(want) {
			return true
		}
	}
	return false
}
