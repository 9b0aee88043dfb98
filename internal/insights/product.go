package insights

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/MesaForge/gastrolytics/internal/database"
)

// ProductOpportunityDetector looks for premium products that sell well below
// their potential and projects the revenue of a 50% sales uplift.
type ProductOpportunityDetector struct {
	db    database.Querier
	scope *Scope
	cfg   ProductThresholds
}

func NewProductOpportunityDetector(db database.Querier, scope *Scope, cfg ProductThresholds) *ProductOpportunityDetector {
	return &ProductOpportunityDetector{db: db, scope: scope, cfg: cfg}
}

func (d *ProductOpportunityDetector) Name() string { return "product_opportunity" }

func (d *ProductOpportunityDetector) Detect(ctx context.Context) ([]Insight, error) {
	insight, err := d.detectUnderperformingPremium(ctx)
	if err != nil {
		return nil, err
	}
	if insight == nil {
		return nil, nil
	}
	return []Insight{*insight}, nil
}

func (d *ProductOpportunityDetector) detectUnderperformingPremium(ctx context.Context) (*Insight, error) {
	filter, filterArgs := d.scope.storeFilter("s.store_id", 8)

	query := fmt.Sprintf(`
		WITH product_stats AS (
			SELECT
				p.id,
				p.name,
				AVG(ps.base_price) AS avg_price,
				COUNT(ps.id) AS total_sales,
				COUNT(ps.id)::float / $4 AS avg_daily_sales,
				AVG(ps.base_price) * COUNT(ps.id)::float / $4 AS daily_revenue_potential
			FROM products p
			INNER JOIN product_sales ps ON ps.product_id = p.id
			INNER JOIN sales s ON ps.sale_id = s.id
			INNER JOIN stores st ON s.store_id = st.id
			WHERE st.brand_id = $1
				AND s.created_at >= $2 AND s.created_at < $3
				%s
			GROUP BY p.id, p.name
			HAVING AVG(ps.base_price) >= $5
				AND COUNT(ps.id) >= $6
		)
		SELECT id, name, avg_price, total_sales, avg_daily_sales
		FROM product_stats
		WHERE avg_daily_sales <= $7
		ORDER BY daily_revenue_potential DESC, avg_price DESC
		LIMIT 1`, filter)

	args := []any{
		d.scope.BrandID, d.scope.StartDate, d.scope.rangeEnd(),
		d.scope.PeriodDays, d.cfg.MinAvgPrice, d.cfg.MinTotalSales, d.cfg.MaxDailySales,
	}
	args = append(args, filterArgs...)

	var (
		productID     int64
		productName   string
		avgPrice      float64
		totalSales    int
		avgDailySales float64
	)
	err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&productID, &productName, &avgPrice, &totalSales, &avgDailySales)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query product opportunity: %w", err)
	}

	// Project a 50% sales uplift from better placement on the menu.
	upliftDailySales := avgDailySales * 0.5
	monthlyAdditionalRevenue := upliftDailySales * avgPrice * 30
	estimatedROI := monthlyAdditionalRevenue * 0.7

	if estimatedROI < d.cfg.MinMonthlyROI {
		return nil, nil
	}

	return &Insight{
		ID:       fmt.Sprintf("product_opportunity_%d_%d", productID, d.scope.BrandID),
		Type:     TypeOpportunity,
		Priority: PriorityAttention,
		Title:    fmt.Sprintf("Underutilized premium product: %s", truncate(productName, 50)),
		Description: fmt.Sprintf(
			"A R$ %.2f product sells only %.1fx per day. With %d sales in the period, there is room to grow.",
			avgPrice, avgDailySales, totalSales),
		Impact: Impact{
			Metric:   "revenue_opportunity",
			Value:    monthlyAdditionalRevenue,
			Currency: "BRL",
			Period:   PeriodMonthly,
		},
		Context: Context{
			AffectedProducts: []int64{productID},
			DataPoints:       totalSales,
		},
		Recommendation: Recommendation{
			Action: fmt.Sprintf(
				"Create a combo or featured delivery placement to lift sales of %s",
				truncate(productName, 40)),
			EstimatedROI: roiPtr(estimatedROI),
			Difficulty:   DifficultyEasy,
			LinkTo:       "/advanced?tab=products",
		},
		DetectedAt:      time.Now(),
		ConfidenceScore: minFloat(0.5+float64(totalSales)/200*0.5, 1.0),
	}, nil
}

// truncate shortens s to at most n characters without splitting a multibyte
// rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
