package insights

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Scope is the read-only analysis window shared by every detector in one
// engine run: brand, inclusive calendar date range, and an optional store
// allow-list. It is constructed once per run and never mutated.
type Scope struct {
	BrandID    int64
	StartDate  time.Time
	EndDate    time.Time
	StoreIDs   []int64
	PeriodDays int
}

// NewScope derives the period length from the inclusive date range.
func NewScope(brandID int64, startDate, endDate time.Time, storeIDs []int64) *Scope {
	return &Scope{
		BrandID:    brandID,
		StartDate:  startDate,
		EndDate:    endDate,
		StoreIDs:   storeIDs,
		PeriodDays: int(endDate.Sub(startDate).Hours()/24) + 1,
	}
}

// rangeEnd is the exclusive upper bound for created_at comparisons.
func (s *Scope) rangeEnd() time.Time {
	return s.EndDate.AddDate(0, 0, 1)
}

// storeFilter returns a SQL fragment restricting column to the allow-list,
// binding the list as parameter number pos. Empty when no filter is set.
func (s *Scope) storeFilter(column string, pos int) (string, []any) {
	if len(s.StoreIDs) == 0 {
		return "", nil
	}
	return fmt.Sprintf(" AND %s = ANY($%d)", column, pos), []any{pq.Array(s.StoreIDs)}
}

// extrapolateMonthly projects a value observed over the scope's period onto
// a 30-day month.
func (s *Scope) extrapolateMonthly(value float64) float64 {
	if s.PeriodDays == 0 {
		return 0
	}
	return value / float64(s.PeriodDays) * 30
}

// weekdayNames is indexed by Postgres DOW (0 = Sunday).
var weekdayNames = [7]string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

func weekdayName(dow int) string {
	if dow < 0 || dow > 6 {
		return "unknown"
	}
	return weekdayNames[dow]
}

func formatHour(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}
