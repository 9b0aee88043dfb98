package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MesaForge/gastrolytics/internal/analytics"
)

const dateLayout = "2006-01-02"

// defaultPeriodDays is the window used when the caller sends no dates.
const defaultPeriodDays = 30

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return t, nil
}

// parseDateRange reads start_date/end_date, defaulting to the trailing 30
// days ending today.
func parseDateRange(r *http.Request) (start, end time.Time, err error) {
	q := r.URL.Query()

	end = time.Now().UTC().Truncate(24 * time.Hour)
	if v := q.Get("end_date"); v != "" {
		if end, err = parseDate(v); err != nil {
			return
		}
	}

	start = end.AddDate(0, 0, -(defaultPeriodDays - 1))
	if v := q.Get("start_date"); v != "" {
		if start, err = parseDate(v); err != nil {
			return
		}
	}

	if end.Before(start) {
		err = fmt.Errorf("end_date %s before start_date %s", end.Format(dateLayout), start.Format(dateLayout))
	}
	return
}

func parseIDList(value string) ([]int64, error) {
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseFilter(r *http.Request) (analytics.Filter, error) {
	var f analytics.Filter

	start, end, err := parseDateRange(r)
	if err != nil {
		return f, err
	}
	f.StartDate = start
	f.EndDate = end

	q := r.URL.Query()
	if v := q.Get("brand_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid brand_id %q", v)
		}
		f.BrandID = id
	}

	if f.StoreIDs, err = parseIDList(q.Get("store_ids")); err != nil {
		return f, err
	}
	if f.ChannelIDs, err = parseIDList(q.Get("channel_ids")); err != nil {
		return f, err
	}
	return f, nil
}

func parseContextFilter(r *http.Request) (analytics.ContextFilter, error) {
	var cf analytics.ContextFilter

	f, err := parseFilter(r)
	if err != nil {
		return cf, err
	}
	cf.Filter = f

	q := r.URL.Query()
	if v := q.Get("weekday"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 0 || d > 6 {
			return cf, fmt.Errorf("invalid weekday %q, want 0-6", v)
		}
		cf.Weekday = &d
	}
	if v := q.Get("hour_start"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h < 0 || h > 23 {
			return cf, fmt.Errorf("invalid hour_start %q", v)
		}
		cf.HourStart = &h
	}
	if v := q.Get("hour_end"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h < 0 || h > 24 {
			return cf, fmt.Errorf("invalid hour_end %q", v)
		}
		cf.HourEnd = &h
	}
	if v := q.Get("channel_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cf, fmt.Errorf("invalid channel_id %q", v)
		}
		cf.ChannelID = &id
	}
	return cf, nil
}

func parseLimit(r *http.Request, def, max int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > max {
		return 0, fmt.Errorf("invalid limit %q, want 1-%d", v, max)
	}
	return n, nil
}
