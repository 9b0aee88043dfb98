package insights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MesaForge/gastrolytics/internal/database"
)

// ChurnRiskDetector finds VIP customers (high trailing-year spend, recurrent
// purchases) who have gone quiet for long enough to be considered at risk.
type ChurnRiskDetector struct {
	db    database.Querier
	scope *Scope
	cfg   ChurnRiskThresholds
}

func NewChurnRiskDetector(db database.Querier, scope *Scope, cfg ChurnRiskThresholds) *ChurnRiskDetector {
	return &ChurnRiskDetector{db: db, scope: scope, cfg: cfg}
}

func (d *ChurnRiskDetector) Name() string { return "churn_risk" }

func (d *ChurnRiskDetector) Detect(ctx context.Context) ([]Insight, error) {
	insight, err := d.detectVIPChurn(ctx)
	if err != nil {
		return nil, err
	}
	if insight == nil {
		return nil, nil
	}
	return []Insight{*insight}, nil
}

func (d *ChurnRiskDetector) detectVIPChurn(ctx context.Context) (*Insight, error) {
	filter, filterArgs := d.scope.storeFilter("s.store_id", 6)

	// LTV is computed over the trailing window ending at the period start.
	ltvStart := d.scope.StartDate.AddDate(0, 0, -d.cfg.LTVWindowDays)

	query := fmt.Sprintf(`
		WITH customer_value AS (
			SELECT
				c.id,
				SUM(s.total_amount) AS ltv,
				MAX(s.created_at::date) AS last_purchase,
				COUNT(s.id) AS total_purchases
			FROM customers c
			INNER JOIN sales s ON s.customer_id = c.id
			INNER JOIN stores st ON s.store_id = st.id
			WHERE st.brand_id = $1
				AND s.sale_status_desc = 'COMPLETED'
				AND s.created_at >= $2
				%s
			GROUP BY c.id
			HAVING SUM(s.total_amount) >= $3
				AND COUNT(s.id) >= $4
		)
		SELECT COUNT(*) AS at_risk_count, COALESCE(SUM(ltv), 0) AS revenue_at_risk
		FROM customer_value
		WHERE last_purchase < CURRENT_DATE - $5::int`, filter)

	args := []any{d.scope.BrandID, ltvStart, d.cfg.MinLTV, d.cfg.MinPurchases, d.cfg.MinInactiveDays}
	args = append(args, filterArgs...)

	var (
		atRiskCount   int
		revenueAtRisk float64
	)
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&atRiskCount, &revenueAtRisk)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query vip churn: %w", err)
	}

	if atRiskCount == 0 || revenueAtRisk < d.cfg.MinRevenueAtRisk {
		return nil, nil
	}

	return &Insight{
		ID:       fmt.Sprintf("churn_risk_vip_%d", d.scope.BrandID),
		Type:     TypeChurnRisk,
		Priority: PriorityCritical,
		Title:    fmt.Sprintf("%d VIP customers at risk of churning", atRiskCount),
		Description: fmt.Sprintf(
			"%d high-value customers (R$ %.0f+ spent over the last year) have not purchased in over %d days. R$ %.2f of revenue at risk.",
			atRiskCount, d.cfg.MinLTV, d.cfg.MinInactiveDays, revenueAtRisk),
		Impact: Impact{
			Metric:   "revenue_at_risk",
			Value:    revenueAtRisk,
			Currency: "BRL",
			Period:   PeriodYearly,
		},
		Context: Context{
			DataPoints: atRiskCount,
		},
		Recommendation: Recommendation{
			Action: fmt.Sprintf(
				"Send a personalized win-back campaign to %d VIP customers: 15%% off \"We miss you\" coupon",
				atRiskCount),
			EstimatedROI: roiPtr(revenueAtRisk * 0.4),
			Difficulty:   DifficultyEasy,
			LinkTo:       "/advanced",
		},
		DetectedAt:      time.Now(),
		ConfidenceScore: minFloat(0.7+float64(atRiskCount)/50*0.3, 1.0),
	}, nil
}
