package analytics

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/MesaForge/gastrolytics/internal/database"
)

// Engine answers the plain aggregation queries: overview KPIs, rankings,
// breakdowns and time distributions. No decision logic lives here.
type Engine struct {
	db     database.Querier
	logger *zap.Logger
}

func NewEngine(db database.Querier, logger *zap.Logger) *Engine {
	return &Engine{db: db, logger: logger}
}

// baseWhere builds the filter clauses every sales aggregation shares. The
// queries all alias sales as s and stores as st.
func baseWhere(f Filter, completedOnly bool) *whereBuilder {
	w := newWhere()
	w.bind("s.created_at >= $%d", f.StartDate)
	w.bind("s.created_at < $%d", rangeEnd(f.EndDate))
	if completedOnly {
		w.lit("s.sale_status_desc = 'COMPLETED'")
	}
	if f.BrandID != 0 {
		w.bind("st.brand_id = $%d", f.BrandID)
	}
	if len(f.StoreIDs) > 0 {
		w.bind("s.store_id = ANY($%d)", pq.Array(f.StoreIDs))
	}
	if len(f.ChannelIDs) > 0 {
		w.bind("s.channel_id = ANY($%d)", pq.Array(f.ChannelIDs))
	}
	return w
}

// ListBrands returns the brand catalog for selection UIs.
func (e *Engine) ListBrands(ctx context.Context) ([]Brand, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT id, name FROM brands ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query brands: %w", err)
	}
	defer rows.Close()

	brands := make([]Brand, 0)
	for rows.Next() {
		var b Brand
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

// ListStores returns the active stores of a brand.
func (e *Engine) ListStores(ctx context.Context, brandID int64) ([]Store, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT id, name, city, state, is_active
		FROM stores
		WHERE brand_id = $1 AND is_active = true
		ORDER BY name`, brandID)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	stores := make([]Store, 0)
	for rows.Next() {
		var s Store
		if err := rows.Scan(&s.ID, &s.Name, &s.City, &s.State, &s.IsActive); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

// Overview computes the headline KPIs for the period.
func (e *Engine) Overview(ctx context.Context, f Filter) (*OverviewMetrics, error) {
	w := baseWhere(f, false)

	query := fmt.Sprintf(`
		SELECT
			COUNT(*) AS total_sales,
			COALESCE(SUM(s.total_amount) FILTER (WHERE s.sale_status_desc = 'COMPLETED'), 0) AS total_revenue,
			COALESCE(AVG(s.total_amount) FILTER (WHERE s.sale_status_desc = 'COMPLETED'), 0) AS average_ticket,
			COUNT(*) FILTER (WHERE s.sale_status_desc = 'COMPLETED') AS completed_sales,
			COUNT(*) FILTER (WHERE s.sale_status_desc = 'CANCELLED') AS cancelled_sales,
			COALESCE(ROUND(COUNT(*) FILTER (WHERE s.sale_status_desc = 'CANCELLED')::numeric / NULLIF(COUNT(*), 0) * 100, 2), 0) AS cancellation_rate,
			COUNT(DISTINCT s.customer_id) FILTER (WHERE s.customer_id IS NOT NULL) AS total_customers
		FROM sales s
		INNER JOIN stores st ON st.id = s.store_id
		WHERE %s`, w)

	var m OverviewMetrics
	err := e.db.QueryRowContext(ctx, query, w.args...).Scan(
		&m.TotalSales, &m.TotalRevenue, &m.AverageTicket,
		&m.CompletedSales, &m.CancelledSales, &m.CancellationRate, &m.TotalCustomers)
	if err != nil {
		return nil, fmt.Errorf("query overview: %w", err)
	}
	return &m, nil
}

// TopProducts ranks products by revenue over completed sales.
func (e *Engine) TopProducts(ctx context.Context, f Filter, limit int) ([]ProductRanking, error) {
	w := baseWhere(f, true)
	limitPos := w.next()
	w.push(limit)

	query := fmt.Sprintf(`
		SELECT
			p.id AS product_id,
			p.name AS product_name,
			COALESCE(c.name, 'Uncategorized') AS category,
			COUNT(DISTINCT ps.sale_id) AS times_sold,
			SUM(ps.quantity) AS total_quantity,
			SUM(ps.total_price) AS total_revenue
		FROM product_sales ps
		JOIN products p ON p.id = ps.product_id
		JOIN sales s ON s.id = ps.sale_id
		INNER JOIN stores st ON st.id = s.store_id
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE %s
		GROUP BY p.id, p.name, c.name
		ORDER BY total_revenue DESC
		LIMIT $%d`, w, limitPos)

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query top products: %w", err)
	}
	defer rows.Close()

	products := make([]ProductRanking, 0)
	for rows.Next() {
		var p ProductRanking
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.Category,
			&p.TimesSold, &p.TotalQuantity, &p.TotalRevenue); err != nil {
			return nil, fmt.Errorf("scan product ranking: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Channels breaks completed sales down by channel, with the revenue share of
// each against the filtered total.
func (e *Engine) Channels(ctx context.Context, f Filter) ([]ChannelMetrics, error) {
	w := baseWhere(f, true)

	query := fmt.Sprintf(`
		WITH channel_stats AS (
			SELECT
				c.id AS channel_id,
				c.name AS channel_name,
				c.type AS channel_type,
				COUNT(*) AS total_sales,
				SUM(s.total_amount) AS total_revenue,
				AVG(s.total_amount) AS average_ticket
			FROM sales s
			JOIN channels c ON c.id = s.channel_id
			INNER JOIN stores st ON st.id = s.store_id
			WHERE %s
			GROUP BY c.id, c.name, c.type
		),
		total_revenue_sum AS (
			SELECT SUM(total_revenue) AS total FROM channel_stats
		)
		SELECT
			cs.channel_id, cs.channel_name, cs.channel_type,
			cs.total_sales, cs.total_revenue, cs.average_ticket,
			COALESCE(ROUND(cs.total_revenue / NULLIF(trs.total, 0) * 100, 2), 0) AS revenue_share
		FROM channel_stats cs
		CROSS JOIN total_revenue_sum trs
		ORDER BY cs.total_revenue DESC`, w)

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	channels := make([]ChannelMetrics, 0)
	for rows.Next() {
		var c ChannelMetrics
		if err := rows.Scan(&c.ChannelID, &c.ChannelName, &c.ChannelType,
			&c.TotalSales, &c.TotalRevenue, &c.AverageTicket, &c.RevenueShare); err != nil {
			return nil, fmt.Errorf("scan channel metrics: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// Stores breaks completed sales down by store.
func (e *Engine) Stores(ctx context.Context, f Filter) ([]StoreMetrics, error) {
	w := baseWhere(f, true)

	query := fmt.Sprintf(`
		WITH store_stats AS (
			SELECT
				st.id AS store_id,
				st.name AS store_name,
				st.city,
				st.state,
				COUNT(*) AS total_sales,
				SUM(s.total_amount) AS total_revenue,
				AVG(s.total_amount) AS average_ticket
			FROM sales s
			JOIN stores st ON st.id = s.store_id
			WHERE %s
			GROUP BY st.id, st.name, st.city, st.state
		),
		total_revenue_sum AS (
			SELECT SUM(total_revenue) AS total FROM store_stats
		)
		SELECT
			ss.store_id, ss.store_name, ss.city, ss.state,
			ss.total_sales, ss.total_revenue, ss.average_ticket,
			COALESCE(ROUND(ss.total_revenue / NULLIF(trs.total, 0) * 100, 2), 0) AS revenue_share
		FROM store_stats ss
		CROSS JOIN total_revenue_sum trs
		ORDER BY ss.total_revenue DESC`, w)

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query store metrics: %w", err)
	}
	defer rows.Close()

	stores := make([]StoreMetrics, 0)
	for rows.Next() {
		var s StoreMetrics
		if err := rows.Scan(&s.StoreID, &s.StoreName, &s.City, &s.State,
			&s.TotalSales, &s.TotalRevenue, &s.AverageTicket, &s.RevenueShare); err != nil {
			return nil, fmt.Errorf("scan store metrics: %w", err)
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

// SalesTrend returns the daily sales series for the period.
func (e *Engine) SalesTrend(ctx context.Context, f Filter) ([]SalesTrendPoint, error) {
	w := baseWhere(f, false)

	query := fmt.Sprintf(`
		SELECT
			DATE(s.created_at)::text AS date,
			COUNT(*) AS total_sales,
			COALESCE(SUM(s.total_amount) FILTER (WHERE s.sale_status_desc = 'COMPLETED'), 0) AS total_revenue,
			COALESCE(AVG(s.total_amount) FILTER (WHERE s.sale_status_desc = 'COMPLETED'), 0) AS average_ticket,
			COUNT(*) FILTER (WHERE s.sale_status_desc = 'COMPLETED') AS completed_sales,
			COUNT(*) FILTER (WHERE s.sale_status_desc = 'CANCELLED') AS cancelled_sales
		FROM sales s
		INNER JOIN stores st ON st.id = s.store_id
		WHERE %s
		GROUP BY DATE(s.created_at)
		ORDER BY date ASC`, w)

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query sales trend: %w", err)
	}
	defer rows.Close()

	trend := make([]SalesTrendPoint, 0)
	for rows.Next() {
		var p SalesTrendPoint
		if err := rows.Scan(&p.Date, &p.TotalSales, &p.TotalRevenue,
			&p.AverageTicket, &p.CompletedSales, &p.CancelledSales); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		trend = append(trend, p)
	}
	return trend, rows.Err()
}

// HourlyDistribution buckets completed sales by hour of day.
func (e *Engine) HourlyDistribution(ctx context.Context, f Filter) ([]HourlyBucket, error) {
	w := baseWhere(f, true)

	query := fmt.Sprintf(`
		SELECT
			EXTRACT(HOUR FROM s.created_at)::int AS hour,
			COUNT(*) AS total_sales,
			SUM(s.total_amount) AS total_revenue,
			AVG(s.total_amount) AS average_ticket
		FROM sales s
		INNER JOIN stores st ON st.id = s.store_id
		WHERE %s
		GROUP BY hour
		ORDER BY hour ASC`, w)

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query hourly distribution: %w", err)
	}
	defer rows.Close()

	buckets := make([]HourlyBucket, 0)
	for rows.Next() {
		var b HourlyBucket
		if err := rows.Scan(&b.Hour, &b.TotalSales, &b.TotalRevenue, &b.AverageTicket); err != nil {
			return nil, fmt.Errorf("scan hourly bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// WeekdayDistribution buckets completed sales by day of week (0 = Sunday).
func (e *Engine) WeekdayDistribution(ctx context.Context, f Filter) ([]WeekdayBucket, error) {
	w := baseWhere(f, true)

	query := fmt.Sprintf(`
		SELECT
			EXTRACT(DOW FROM s.created_at)::int AS weekday,
			COUNT(*) AS total_sales,
			SUM(s.total_amount) AS total_revenue,
			AVG(s.total_amount) AS average_ticket
		FROM sales s
		INNER JOIN stores st ON st.id = s.store_id
		WHERE %s
		GROUP BY weekday
		ORDER BY weekday ASC`, w)

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query weekday distribution: %w", err)
	}
	defer rows.Close()

	buckets := make([]WeekdayBucket, 0)
	for rows.Next() {
		var b WeekdayBucket
		if err := rows.Scan(&b.Weekday, &b.TotalSales, &b.TotalRevenue, &b.AverageTicket); err != nil {
			return nil, fmt.Errorf("scan weekday bucket: %w", err)
		}
		b.WeekdayName = weekdayName(b.Weekday)
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// Categories aggregates line-item revenue per product category.
func (e *Engine) Categories(ctx context.Context, f Filter) ([]CategoryMetrics, error) {
	w := baseWhere(f, true)

	query := fmt.Sprintf(`
		WITH category_stats AS (
			SELECT
				COALESCE(c.name, 'Uncategorized') AS category_name,
				COUNT(*) AS total_sales,
				SUM(ps.total_price) AS total_revenue,
				AVG(ps.total_price) AS average_price
			FROM product_sales ps
			JOIN products p ON p.id = ps.product_id
			JOIN sales s ON s.id = ps.sale_id
			INNER JOIN stores st ON st.id = s.store_id
			LEFT JOIN categories c ON c.id = p.category_id
			WHERE %s
			GROUP BY c.name
		),
		total_revenue_sum AS (
			SELECT SUM(total_revenue) AS total FROM category_stats
		)
		SELECT
			cs.category_name, cs.total_sales, cs.total_revenue, cs.average_price,
			COALESCE(ROUND(cs.total_revenue / NULLIF(trs.total, 0) * 100, 2), 0) AS revenue_share
		FROM category_stats cs
		CROSS JOIN total_revenue_sum trs
		ORDER BY cs.total_revenue DESC`, w)

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]CategoryMetrics, 0)
	for rows.Next() {
		var c CategoryMetrics
		if err := rows.Scan(&c.CategoryName, &c.TotalSales, &c.TotalRevenue,
			&c.AveragePrice, &c.RevenueShare); err != nil {
			return nil, fmt.Errorf("scan category metrics: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}
