package insights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MesaForge/gastrolytics/internal/database"
)

// CancellationDetector flags order cancellation problems: a single worst
// (store, channel, weekday, hour) cell, and the overall rate across the scope.
type CancellationDetector struct {
	db    database.Querier
	scope *Scope
	cfg   CancellationThresholds
}

func NewCancellationDetector(db database.Querier, scope *Scope, cfg CancellationThresholds) *CancellationDetector {
	return &CancellationDetector{db: db, scope: scope, cfg: cfg}
}

func (d *CancellationDetector) Name() string { return "cancellation" }

func (d *CancellationDetector) Detect(ctx context.Context) ([]Insight, error) {
	var insights []Insight

	pattern, err := d.detectContextualPattern(ctx)
	if err != nil {
		return nil, fmt.Errorf("contextual pattern: %w", err)
	}
	if pattern != nil {
		insights = append(insights, *pattern)
	}

	overall, err := d.detectOverallRate(ctx)
	if err != nil {
		return nil, fmt.Errorf("overall rate: %w", err)
	}
	if overall != nil {
		insights = append(insights, *overall)
	}

	return insights, nil
}

// detectContextualPattern finds the worst (store, channel, weekday, hour)
// group with enough volume and either a high cancellation rate or a slow
// average delivery.
func (d *CancellationDetector) detectContextualPattern(ctx context.Context) (*Insight, error) {
	filter, filterArgs := d.scope.storeFilter("s.store_id", 7)

	query := fmt.Sprintf(`
		WITH cancellation_analysis AS (
			SELECT
				s.store_id,
				st.name AS store_name,
				s.channel_id,
				ch.name AS channel_name,
				EXTRACT(DOW FROM s.created_at)::int AS weekday,
				EXTRACT(HOUR FROM s.created_at)::int AS hour,
				COUNT(*) AS total_orders,
				COUNT(*) FILTER (WHERE s.sale_status_desc IN ('CANCELLED', 'CANCELED')) AS cancelled_orders,
				COUNT(*) FILTER (WHERE s.sale_status_desc IN ('CANCELLED', 'CANCELED')) * 100.0 / NULLIF(COUNT(*), 0) AS cancellation_rate,
				COALESCE(SUM(s.total_amount) FILTER (WHERE s.sale_status_desc IN ('CANCELLED', 'CANCELED')), 0) AS lost_revenue,
				AVG(s.delivery_seconds / 60.0) FILTER (WHERE s.delivery_seconds IS NOT NULL) AS avg_delivery_minutes
			FROM sales s
			INNER JOIN stores st ON s.store_id = st.id
			INNER JOIN channels ch ON s.channel_id = ch.id
			WHERE st.brand_id = $1
				AND s.created_at >= $2 AND s.created_at < $3
				%s
			GROUP BY s.store_id, st.name, s.channel_id, ch.name, weekday, hour
			HAVING COUNT(*) >= $4
				AND (
					COUNT(*) FILTER (WHERE s.sale_status_desc IN ('CANCELLED', 'CANCELED')) * 100.0 / NULLIF(COUNT(*), 0) >= $5
					OR AVG(s.delivery_seconds / 60.0) FILTER (WHERE s.delivery_seconds IS NOT NULL) >= $6
				)
			ORDER BY cancellation_rate DESC, lost_revenue DESC
			LIMIT 1
		)
		SELECT store_id, store_name, channel_id, channel_name, weekday, hour,
			total_orders, cancelled_orders, cancellation_rate, lost_revenue, avg_delivery_minutes
		FROM cancellation_analysis`, filter)

	args := []any{
		d.scope.BrandID, d.scope.StartDate, d.scope.rangeEnd(),
		d.cfg.MinOrders, d.cfg.MinRate, d.cfg.HighDeliveryMinutes,
	}
	args = append(args, filterArgs...)

	var (
		storeID, channelID     int64
		storeName, channelName string
		weekday, hour          int
		totalOrders, cancelled int
		cancellationRate       float64
		lostRevenue            float64
		avgDelivery            sql.NullFloat64
	)
	err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&storeID, &storeName, &channelID, &channelName, &weekday, &hour,
		&totalOrders, &cancelled, &cancellationRate, &lostRevenue, &avgDelivery,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cancellation pattern: %w", err)
	}

	monthlyLoss := d.scope.extrapolateMonthly(lostRevenue)
	day := weekdayName(weekday)
	hourStr := formatHour(hour)
	isDeliveryIssue := avgDelivery.Valid && avgDelivery.Float64 >= d.cfg.HighDeliveryMinutes

	var title, description, action string
	if isDeliveryIssue {
		title = "High cancellation volume driven by slow delivery"
		description = fmt.Sprintf(
			"%d orders cancelled at %s (%s) with an average delivery time of %.0f minutes. Concentrated on %s at %s.",
			cancelled, storeName, channelName, avgDelivery.Float64, day, hourStr)
		action = fmt.Sprintf("Add delivery couriers during the peak window: %s from %s to %02d:00",
			day, hourStr, hour+2)
	} else {
		title = fmt.Sprintf("Critical cancellation rate: %.1f%%", cancellationRate)
		description = fmt.Sprintf(
			"%d of %d orders cancelled at %s (%s). Concentrated on %s at %s.",
			cancelled, totalOrders, storeName, channelName, day, hourStr)
		action = fmt.Sprintf("Investigate cancellation causes at %s on %s at %s", storeName, day, hourStr)
	}

	confidence := minFloat(0.5+float64(totalOrders)/100*0.5, 1.0)

	return &Insight{
		ID:          fmt.Sprintf("cancellation_pattern_%d_%d_%d_%d", storeID, channelID, weekday, hour),
		Type:        TypePerformanceIssue,
		Priority:    PriorityCritical,
		Title:       title,
		Description: description,
		Impact: Impact{
			Metric:   "revenue_loss",
			Value:    monthlyLoss,
			Currency: "BRL",
			Period:   PeriodMonthly,
		},
		Context: Context{
			AffectedStores:   []int64{storeID},
			AffectedChannels: []int64{channelID},
			AffectedDays:     []string{day},
			AffectedHours:    []int{hour},
			DataPoints:       totalOrders,
		},
		Recommendation: Recommendation{
			Action:       action,
			EstimatedROI: roiPtr(monthlyLoss * 0.7),
			Difficulty:   DifficultyMedium,
			LinkTo:       "/advanced?tab=delivery",
		},
		DetectedAt:      time.Now(),
		ConfidenceScore: confidence,
	}, nil
}

// detectOverallRate checks the cancellation rate across the whole scope and
// fires only when the extrapolated monthly loss is material.
func (d *CancellationDetector) detectOverallRate(ctx context.Context) (*Insight, error) {
	filter, filterArgs := d.scope.storeFilter("s.store_id", 4)

	query := fmt.Sprintf(`
		SELECT
			COUNT(*) AS total_orders,
			COUNT(*) FILTER (WHERE s.sale_status_desc IN ('CANCELLED', 'CANCELED')) AS cancelled_orders,
			COUNT(*) FILTER (WHERE s.sale_status_desc IN ('CANCELLED', 'CANCELED')) * 100.0 / NULLIF(COUNT(*), 0) AS cancellation_rate,
			COALESCE(SUM(s.total_amount) FILTER (WHERE s.sale_status_desc IN ('CANCELLED', 'CANCELED')), 0) AS lost_revenue
		FROM sales s
		INNER JOIN stores st ON s.store_id = st.id
		WHERE st.brand_id = $1
			AND s.created_at >= $2 AND s.created_at < $3
			%s`, filter)

	args := []any{d.scope.BrandID, d.scope.StartDate, d.scope.rangeEnd()}
	args = append(args, filterArgs...)

	var (
		totalOrders, cancelled int
		rate                   sql.NullFloat64
		lostRevenue            float64
	)
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&totalOrders, &cancelled, &rate, &lostRevenue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query overall cancellation: %w", err)
	}

	if !rate.Valid || rate.Float64 < d.cfg.MinRate {
		return nil, nil
	}

	monthlyLoss := d.scope.extrapolateMonthly(lostRevenue)
	if monthlyLoss < d.cfg.MinMonthlyLoss {
		return nil, nil
	}

	priority := PriorityAttention
	if rate.Float64 > d.cfg.CriticalRate {
		priority = PriorityCritical
	}

	return &Insight{
		ID:       fmt.Sprintf("overall_cancellation_%d", d.scope.BrandID),
		Type:     TypePerformanceIssue,
		Priority: priority,
		Title:    fmt.Sprintf("Elevated overall cancellation rate: %.1f%%", rate.Float64),
		Description: fmt.Sprintf(
			"%d of %d orders cancelled in the analyzed period, representing R$ %.2f in lost revenue.",
			cancelled, totalOrders, lostRevenue),
		Impact: Impact{
			Metric:   "revenue_loss",
			Value:    monthlyLoss,
			Currency: "BRL",
			Period:   PeriodMonthly,
		},
		Context: Context{
			DataPoints: totalOrders,
		},
		Recommendation: Recommendation{
			Action:       "Review the main cancellation reasons and roll out operational fixes",
			EstimatedROI: roiPtr(monthlyLoss * 0.6),
			Difficulty:   DifficultyMedium,
			LinkTo:       "/advanced?tab=delivery",
		},
		DetectedAt:      time.Now(),
		ConfidenceScore: minFloat(0.6+float64(totalOrders)/500*0.4, 1.0),
	}, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
