package insights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MesaForge/gastrolytics/internal/database"
)

// StoreOutlierDetector compares each active store against the cross-store
// revenue average and flags the worst underperformer and the best
// overperformer when the deviation is large enough to matter.
type StoreOutlierDetector struct {
	db    database.Querier
	scope *Scope
	cfg   StoreOutlierThresholds
}

func NewStoreOutlierDetector(db database.Querier, scope *Scope, cfg StoreOutlierThresholds) *StoreOutlierDetector {
	return &StoreOutlierDetector{db: db, scope: scope, cfg: cfg}
}

func (d *StoreOutlierDetector) Name() string { return "store_outlier" }

func (d *StoreOutlierDetector) Detect(ctx context.Context) ([]Insight, error) {
	var insights []Insight

	under, err := d.detectOutlier(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("underperformer: %w", err)
	}
	if under != nil {
		insights = append(insights, *under)
	}

	over, err := d.detectOutlier(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("overperformer: %w", err)
	}
	if over != nil {
		insights = append(insights, *over)
	}

	return insights, nil
}

type storeOutlierRow struct {
	storeID    int64
	storeName  string
	revenue    float64
	orders     int
	avgRevenue float64
	diffPct    float64
	gap        float64
}

func (d *StoreOutlierDetector) queryOutlier(ctx context.Context, over bool) (*storeOutlierRow, error) {
	filter, filterArgs := d.scope.storeFilter("st.id", 5)

	comparison := "< -$4"
	order := "ASC"
	if over {
		comparison = "> $4"
		order = "DESC"
	}

	query := fmt.Sprintf(`
		WITH store_performance AS (
			SELECT
				st.id,
				st.name,
				COALESCE(SUM(s.total_amount) FILTER (WHERE s.sale_status_desc = 'COMPLETED'), 0) AS revenue,
				COUNT(s.id) FILTER (WHERE s.sale_status_desc = 'COMPLETED') AS orders
			FROM stores st
			LEFT JOIN sales s ON s.store_id = st.id
				AND s.created_at >= $2 AND s.created_at < $3
			WHERE st.brand_id = $1
				AND st.is_active = true
				%s
			GROUP BY st.id, st.name
		),
		avg_metrics AS (
			SELECT AVG(revenue) AS avg_revenue FROM store_performance
		)
		SELECT
			sp.id, sp.name, sp.revenue, sp.orders, am.avg_revenue,
			((sp.revenue - am.avg_revenue) / NULLIF(am.avg_revenue, 0) * 100) AS revenue_diff_pct,
			(sp.revenue - am.avg_revenue) AS revenue_gap
		FROM store_performance sp, avg_metrics am
		WHERE am.avg_revenue > 0
			AND ((sp.revenue - am.avg_revenue) / NULLIF(am.avg_revenue, 0) * 100) %s
		ORDER BY revenue_diff_pct %s
		LIMIT 1`, filter, comparison, order)

	args := []any{d.scope.BrandID, d.scope.StartDate, d.scope.rangeEnd(), d.cfg.MinRevenueDiffPct}
	args = append(args, filterArgs...)

	var row storeOutlierRow
	err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&row.storeID, &row.storeName, &row.revenue, &row.orders,
		&row.avgRevenue, &row.diffPct, &row.gap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query store outlier: %w", err)
	}
	return &row, nil
}

func (d *StoreOutlierDetector) detectOutlier(ctx context.Context, over bool) (*Insight, error) {
	row, err := d.queryOutlier(ctx, over)
	if err != nil || row == nil {
		return nil, err
	}

	monthlyGap := math.Abs(d.scope.extrapolateMonthly(row.gap))
	if monthlyGap < d.cfg.MinMonthlyGap {
		return nil, nil
	}

	confidence, err := d.confidence(ctx)
	if err != nil {
		return nil, err
	}

	if over {
		return &Insight{
			ID:       fmt.Sprintf("store_overperformer_%d_%d", row.storeID, d.scope.BrandID),
			Type:     TypeSuccessPattern,
			Priority: PriorityPositive,
			Title: fmt.Sprintf("Standout store %s: +%.1f%% above average",
				truncate(row.storeName, 50), row.diffPct),
			Description: fmt.Sprintf(
				"Store %s brought in R$ %.2f, R$ %.2f above the average of the other stores. A %.1f%% deviation from the expected.",
				row.storeName, row.revenue, row.gap, row.diffPct),
			Impact: Impact{
				Metric:   "revenue_potential",
				Value:    monthlyGap,
				Currency: "BRL",
				Period:   PeriodMonthly,
			},
			Context: Context{
				AffectedStores: []int64{row.storeID},
				DataPoints:     row.orders,
			},
			Recommendation: Recommendation{
				Action: fmt.Sprintf(
					"Study what %s does right and replicate it across the network: location, management, operations, product mix and delivery presence.",
					row.storeName),
				EstimatedROI: roiPtr(monthlyGap * 0.4),
				Difficulty:   DifficultyHard,
				LinkTo:       "/advanced",
			},
			DetectedAt:      time.Now(),
			ConfidenceScore: confidence,
		}, nil
	}

	priority := PriorityAttention
	if math.Abs(row.diffPct) > d.cfg.SevereDiffPct {
		priority = PriorityCritical
	}

	return &Insight{
		ID:       fmt.Sprintf("store_underperformer_%d_%d", row.storeID, d.scope.BrandID),
		Type:     TypePerformanceIssue,
		Priority: priority,
		Title: fmt.Sprintf("Store %s below average: %.1f%%",
			truncate(row.storeName, 50), math.Abs(row.diffPct)),
		Description: fmt.Sprintf(
			"Store %s brought in R$ %.2f, R$ %.2f below the average of the other stores. A %.1f%% deviation from the expected.",
			row.storeName, row.revenue, math.Abs(row.gap), math.Abs(row.diffPct)),
		Impact: Impact{
			Metric:   "revenue_gap",
			Value:    monthlyGap,
			Currency: "BRL",
			Period:   PeriodMonthly,
		},
		Context: Context{
			AffectedStores: []int64{row.storeID},
			DataPoints:     row.orders,
		},
		Recommendation: Recommendation{
			Action: fmt.Sprintf(
				"Investigate the causes of low performance at %s: location, management, operations and delivery visibility.",
				row.storeName),
			EstimatedROI: roiPtr(monthlyGap * 0.5),
			Difficulty:   DifficultyMedium,
			LinkTo:       "/advanced",
		},
		DetectedAt:      time.Now(),
		ConfidenceScore: confidence,
	}, nil
}

// confidence scales with the number of active stores backing the baseline.
// Below the minimum the comparison is weak, so a fixed low score is used.
func (d *StoreOutlierDetector) confidence(ctx context.Context) (float64, error) {
	n, err := d.countActiveStores(ctx)
	if err != nil {
		return 0, err
	}
	if n < d.cfg.MinStores {
		return 0.4, nil
	}
	return minFloat(0.5+float64(n)/10*0.5, 1.0), nil
}

func (d *StoreOutlierDetector) countActiveStores(ctx context.Context) (int, error) {
	filter, filterArgs := d.scope.storeFilter("st.id", 2)

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM stores st
		WHERE st.brand_id = $1
			AND st.is_active = true
			%s`, filter)

	args := []any{d.scope.BrandID}
	args = append(args, filterArgs...)

	var n int
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active stores: %w", err)
	}
	return n, nil
}
