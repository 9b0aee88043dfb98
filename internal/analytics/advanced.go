package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/MesaForge/gastrolytics/internal/database"
)

// onTimeThresholdSeconds is production plus delivery time within 45 minutes.
const onTimeThresholdSeconds = 2700

// AdvancedEngine answers delivery, customer-retention and contextual
// questions on top of the same sales dataset.
type AdvancedEngine struct {
	db     database.Querier
	logger *zap.Logger
}

func NewAdvancedEngine(db database.Querier, logger *zap.Logger) *AdvancedEngine {
	return &AdvancedEngine{db: db, logger: logger}
}

// contextWhere extends the common scope with weekday, hour-range and channel
// restrictions.
func contextWhere(f ContextFilter, completedOnly bool) *whereBuilder {
	w := newWhere()
	w.bind("s.created_at >= $%d", f.StartDate)
	w.bind("s.created_at < $%d", rangeEnd(f.EndDate))
	if completedOnly {
		w.lit("s.sale_status_desc = 'COMPLETED'")
	}
	if f.BrandID != 0 {
		w.bind("st.brand_id = $%d", f.BrandID)
	}
	if f.Weekday != nil {
		w.bind("EXTRACT(DOW FROM s.created_at)::int = $%d", *f.Weekday)
	}
	if f.HourStart != nil {
		w.bind("EXTRACT(HOUR FROM s.created_at)::int >= $%d", *f.HourStart)
	}
	if f.HourEnd != nil {
		w.bind("EXTRACT(HOUR FROM s.created_at)::int < $%d", *f.HourEnd)
	}
	if f.ChannelID != nil {
		w.bind("s.channel_id = $%d", *f.ChannelID)
	}
	if len(f.StoreIDs) > 0 {
		w.bind("s.store_id = ANY($%d)", pq.Array(f.StoreIDs))
	}
	return w
}

// DeliveryPerformance returns overall delivery metrics, a per-region
// breakdown, and the daily trend for the filtered scope.
func (e *AdvancedEngine) DeliveryPerformance(ctx context.Context, f ContextFilter) (*DeliveryPerformance, []DeliveryRegion, []DeliveryTrendPoint, error) {
	overall, err := e.deliveryOverall(ctx, f)
	if err != nil {
		return nil, nil, nil, err
	}

	regions, err := e.deliveryByRegion(ctx, f)
	if err != nil {
		return nil, nil, nil, err
	}

	trend, err := e.deliveryTrend(ctx, f)
	if err != nil {
		return nil, nil, nil, err
	}

	return overall, regions, trend, nil
}

func (e *AdvancedEngine) deliveryOverall(ctx context.Context, f ContextFilter) (*DeliveryPerformance, error) {
	w := contextWhere(f, true)

	query := fmt.Sprintf(`
		SELECT
			COALESCE(AVG(s.delivery_seconds), 0) AS avg_delivery_time,
			COALESCE(AVG(s.production_seconds), 0) AS avg_production_time,
			COUNT(*) AS total_deliveries,
			COUNT(*) FILTER (WHERE (s.delivery_seconds + s.production_seconds) <= %d) AS on_time_deliveries
		FROM sales s
		INNER JOIN stores st ON s.store_id = st.id
		JOIN delivery_sales ds ON ds.sale_id = s.id
		WHERE %s`, onTimeThresholdSeconds, w)

	var m DeliveryPerformance
	err := e.db.QueryRowContext(ctx, query, w.args...).Scan(
		&m.AvgDeliveryTime, &m.AvgProductionTime, &m.TotalDeliveries, &m.OnTimeDeliveries)
	if err != nil {
		return nil, fmt.Errorf("query delivery overall: %w", err)
	}
	if m.TotalDeliveries > 0 {
		m.OnTimeRate = round2(float64(m.OnTimeDeliveries) / float64(m.TotalDeliveries) * 100)
	}

	// Cancellation figures include non-completed orders, so they use their
	// own unrestricted status scope.
	wAll := contextWhere(f, false)
	cancelQuery := fmt.Sprintf(`
		SELECT
			COUNT(*) AS total_orders,
			COUNT(*) FILTER (WHERE s.sale_status_desc IN ('CANCELLED', 'CANCELED')) AS cancelled_orders
		FROM sales s
		INNER JOIN stores st ON s.store_id = st.id
		WHERE %s`, wAll)

	err = e.db.QueryRowContext(ctx, cancelQuery, wAll.args...).Scan(&m.TotalOrders, &m.CancelledOrders)
	if err != nil {
		return nil, fmt.Errorf("query delivery cancellations: %w", err)
	}
	if m.TotalOrders > 0 {
		m.CancellationRate = round2(float64(m.CancelledOrders) / float64(m.TotalOrders) * 100)
	}
	return &m, nil
}

func (e *AdvancedEngine) deliveryByRegion(ctx context.Context, f ContextFilter) ([]DeliveryRegion, error) {
	w := contextWhere(f, true)

	query := fmt.Sprintf(`
		SELECT
			da.city,
			da.state,
			COUNT(*) AS total_deliveries,
			COALESCE(AVG(s.delivery_seconds), 0) AS avg_delivery_time,
			COALESCE(AVG(s.production_seconds), 0) AS avg_production_time,
			COALESCE(ROUND(COUNT(*) FILTER (WHERE (s.delivery_seconds + s.production_seconds) <= %d)::numeric / NULLIF(COUNT(*), 0) * 100, 2), 0) AS on_time_rate
		FROM sales s
		INNER JOIN stores st ON s.store_id = st.id
		JOIN delivery_sales ds ON ds.sale_id = s.id
		JOIN delivery_addresses da ON da.sale_id = s.id
		WHERE %s
		GROUP BY da.city, da.state
		HAVING COUNT(*) >= 10
		ORDER BY total_deliveries DESC
		LIMIT 20`, onTimeThresholdSeconds, w)

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query delivery regions: %w", err)
	}
	defer rows.Close()

	regions := make([]DeliveryRegion, 0)
	for rows.Next() {
		var r DeliveryRegion
		if err := rows.Scan(&r.City, &r.State, &r.TotalDeliveries,
			&r.AvgDeliveryTime, &r.AvgProductionTime, &r.OnTimeRate); err != nil {
			return nil, fmt.Errorf("scan delivery region: %w", err)
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

func (e *AdvancedEngine) deliveryTrend(ctx context.Context, f ContextFilter) ([]DeliveryTrendPoint, error) {
	w := contextWhere(f, true)

	query := fmt.Sprintf(`
		SELECT
			DATE(s.created_at)::text AS date,
			COALESCE(AVG(s.delivery_seconds), 0) AS avg_delivery_time,
			COALESCE(AVG(s.production_seconds), 0) AS avg_production_time,
			COUNT(*) AS total_deliveries,
			COALESCE(ROUND(COUNT(*) FILTER (WHERE (s.delivery_seconds + s.production_seconds) <= %d)::numeric / NULLIF(COUNT(*), 0) * 100, 2), 0) AS on_time_rate
		FROM sales s
		INNER JOIN stores st ON s.store_id = st.id
		JOIN delivery_sales ds ON ds.sale_id = s.id
		WHERE %s
		GROUP BY DATE(s.created_at)
		ORDER BY date ASC`, onTimeThresholdSeconds, w)

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query delivery trend: %w", err)
	}
	defer rows.Close()

	trend := make([]DeliveryTrendPoint, 0)
	for rows.Next() {
		var p DeliveryTrendPoint
		if err := rows.Scan(&p.Date, &p.AvgDeliveryTime, &p.AvgProductionTime,
			&p.TotalDeliveries, &p.OnTimeRate); err != nil {
			return nil, fmt.Errorf("scan delivery trend: %w", err)
		}
		trend = append(trend, p)
	}
	return trend, rows.Err()
}

// CustomerRFM segments customers by recency, frequency and monetary value.
// Recency is measured against referenceDate (defaults to the period end).
func (e *AdvancedEngine) CustomerRFM(ctx context.Context, f Filter, referenceDate time.Time) ([]CustomerRFM, error) {
	if referenceDate.IsZero() {
		referenceDate = f.EndDate
	}

	w := newWhere()
	w.bind("s.created_at >= $%d", f.StartDate)
	w.bind("s.created_at < $%d", rangeEnd(f.EndDate))
	refPos := w.next()
	w.push(referenceDate)
	w.lit("s.sale_status_desc = 'COMPLETED'")
	if f.BrandID != 0 {
		w.bind("st.brand_id = $%d", f.BrandID)
	}
	if len(f.StoreIDs) > 0 {
		w.bind("s.store_id = ANY($%d)", pq.Array(f.StoreIDs))
	}

	query := fmt.Sprintf(`
		WITH customer_stats AS (
			SELECT
				c.id AS customer_id,
				COALESCE(c.customer_name, 'Anonymous') AS customer_name,
				MAX(s.created_at::date)::text AS last_purchase_date,
				($%d::date - MAX(s.created_at::date)) AS recency_days,
				COUNT(*) AS frequency,
				SUM(s.total_amount) AS monetary
			FROM customers c
			JOIN sales s ON s.customer_id = c.id
			INNER JOIN stores st ON s.store_id = st.id
			WHERE %s
			GROUP BY c.id, c.customer_name
		)
		SELECT
			customer_id, customer_name, recency_days, frequency, monetary, last_purchase_date,
			CASE
				WHEN recency_days <= 7 AND frequency >= 5 AND monetary >= 500 THEN 'VIP'
				WHEN recency_days <= 15 AND frequency >= 3 THEN 'Regular'
				WHEN recency_days > 30 AND frequency >= 3 THEN 'At Risk'
				WHEN recency_days > 60 THEN 'Inactive'
				ELSE 'New'
			END AS rfm_segment
		FROM customer_stats
		ORDER BY
			CASE
				WHEN recency_days <= 7 AND frequency >= 5 AND monetary >= 500 THEN 1
				WHEN recency_days <= 15 AND frequency >= 3 THEN 2
				WHEN recency_days > 30 AND frequency >= 3 THEN 3
				WHEN recency_days > 60 THEN 4
				ELSE 5
			END,
			monetary DESC
		LIMIT 1000`, refPos, w)

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query customer rfm: %w", err)
	}
	defer rows.Close()

	customers := make([]CustomerRFM, 0)
	for rows.Next() {
		var c CustomerRFM
		if err := rows.Scan(&c.CustomerID, &c.CustomerName, &c.RecencyDays,
			&c.Frequency, &c.Monetary, &c.LastPurchaseDate, &c.Segment); err != nil {
			return nil, fmt.Errorf("scan customer rfm: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// ChurnParams scope the churn-risk customer listing.
type ChurnParams struct {
	MinPurchases int
	DaysInactive int
	BrandID      int64
	StoreIDs     []int64
	Limit        int
}

// ChurnRiskCustomers lists recurrent customers who have gone quiet, with
// their purchase cadence and favorite channel/product for win-back targeting.
func (e *AdvancedEngine) ChurnRiskCustomers(ctx context.Context, p ChurnParams) ([]ChurnRiskCustomer, error) {
	if p.MinPurchases == 0 {
		p.MinPurchases = 3
	}
	if p.DaysInactive == 0 {
		p.DaysInactive = 30
	}
	if p.Limit == 0 {
		p.Limit = 100
	}

	filter := ""
	args := []any{p.MinPurchases, p.DaysInactive, p.Limit}
	if p.BrandID != 0 {
		args = append(args, p.BrandID)
		filter += fmt.Sprintf(" AND st.brand_id = $%d", len(args))
	}
	if len(p.StoreIDs) > 0 {
		args = append(args, pq.Array(p.StoreIDs))
		filter += fmt.Sprintf(" AND st.id = ANY($%d)", len(args))
	}

	query := fmt.Sprintf(`
		WITH purchase_intervals AS (
			SELECT
				s.customer_id,
				s.created_at::date - LAG(s.created_at::date) OVER (PARTITION BY s.customer_id ORDER BY s.created_at) AS days_between
			FROM sales s
			INNER JOIN stores st ON s.store_id = st.id
			WHERE s.sale_status_desc = 'COMPLETED'
				AND s.customer_id IS NOT NULL
				%[1]s
		),
		customer_stats AS (
			SELECT
				c.id AS customer_id,
				COALESCE(c.customer_name, 'Anonymous') AS customer_name,
				COALESCE(c.email, '') AS email,
				COALESCE(c.phone_number, '') AS phone_number,
				COUNT(*) AS total_purchases,
				SUM(s.total_amount) AS total_spent,
				MAX(s.created_at::date)::text AS last_purchase_date,
				CURRENT_DATE - MAX(s.created_at::date) AS days_since_last_purchase,
				COALESCE((
					SELECT AVG(days_between)::float
					FROM purchase_intervals pi
					WHERE pi.customer_id = c.id AND pi.days_between IS NOT NULL
				), 0.0) AS avg_days_between_purchases
			FROM customers c
			JOIN sales s ON s.customer_id = c.id
			INNER JOIN stores st ON s.store_id = st.id
			WHERE s.sale_status_desc = 'COMPLETED'
				%[1]s
			GROUP BY c.id, c.customer_name, c.email, c.phone_number
			HAVING COUNT(*) >= $1
				AND CURRENT_DATE - MAX(s.created_at::date) >= $2
		),
		favorite_channel AS (
			SELECT DISTINCT ON (s.customer_id)
				s.customer_id,
				ch.name AS channel_name
			FROM sales s
			INNER JOIN stores st ON s.store_id = st.id
			JOIN channels ch ON ch.id = s.channel_id
			WHERE s.sale_status_desc = 'COMPLETED'
				%[1]s
			GROUP BY s.customer_id, ch.name
			ORDER BY s.customer_id, COUNT(*) DESC
		),
		favorite_product AS (
			SELECT DISTINCT ON (s.customer_id)
				s.customer_id,
				p.name AS product_name
			FROM sales s
			INNER JOIN stores st ON s.store_id = st.id
			JOIN product_sales ps ON ps.sale_id = s.id
			JOIN products p ON p.id = ps.product_id
			WHERE s.sale_status_desc = 'COMPLETED'
				%[1]s
			GROUP BY s.customer_id, p.name
			ORDER BY s.customer_id, COUNT(*) DESC
		)
		SELECT
			cs.customer_id, cs.customer_name, cs.email, cs.phone_number,
			cs.total_purchases, cs.total_spent, cs.last_purchase_date,
			cs.days_since_last_purchase, cs.avg_days_between_purchases,
			COALESCE(fc.channel_name, 'Unknown') AS favorite_channel,
			COALESCE(fp.product_name, '') AS favorite_product
		FROM customer_stats cs
		LEFT JOIN favorite_channel fc ON fc.customer_id = cs.customer_id
		LEFT JOIN favorite_product fp ON fp.customer_id = cs.customer_id
		ORDER BY cs.total_spent DESC, cs.days_since_last_purchase DESC
		LIMIT $3`, filter)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query churn risk customers: %w", err)
	}
	defer rows.Close()

	customers := make([]ChurnRiskCustomer, 0)
	for rows.Next() {
		var c ChurnRiskCustomer
		if err := rows.Scan(&c.CustomerID, &c.CustomerName, &c.Email, &c.PhoneNumber,
			&c.TotalPurchases, &c.TotalSpent, &c.LastPurchaseDate,
			&c.DaysSinceLastPurchase, &c.AvgDaysBetween,
			&c.FavoriteChannel, &c.FavoriteProduct); err != nil {
			return nil, fmt.Errorf("scan churn risk customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// ProductsByContext ranks products within a contextual slice (weekday, hour
// range, channel), echoing the context back in each row.
func (e *AdvancedEngine) ProductsByContext(ctx context.Context, f ContextFilter, limit int) ([]ProductByContext, error) {
	if limit == 0 {
		limit = 20
	}

	contextInfo := map[string]string{}
	if f.Weekday != nil {
		contextInfo["weekday"] = weekdayName(*f.Weekday)
	}
	if f.HourStart != nil && f.HourEnd != nil {
		contextInfo["hour_range"] = fmt.Sprintf("%02d:00-%02d:00", *f.HourStart, *f.HourEnd)
	}
	if f.ChannelID != nil {
		var name string
		err := e.db.QueryRowContext(ctx, `SELECT name FROM channels WHERE id = $1`, *f.ChannelID).Scan(&name)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query channel name: %w", err)
		}
		if name != "" {
			contextInfo["channel"] = name
		}
	}

	w := contextWhere(f, true)
	limitPos := w.next()
	w.push(limit)

	query := fmt.Sprintf(`
		SELECT
			p.id AS product_id,
			p.name AS product_name,
			COALESCE(c.name, 'Uncategorized') AS category,
			COUNT(DISTINCT ps.sale_id) AS times_sold,
			SUM(ps.total_price) AS total_revenue,
			AVG(ps.total_price / ps.quantity) AS avg_price
		FROM product_sales ps
		JOIN products p ON p.id = ps.product_id
		JOIN sales s ON s.id = ps.sale_id
		INNER JOIN stores st ON s.store_id = st.id
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE %s
		GROUP BY p.id, p.name, c.name
		ORDER BY total_revenue DESC
		LIMIT $%d`, w, limitPos)

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query products by context: %w", err)
	}
	defer rows.Close()

	products := make([]ProductByContext, 0)
	for rows.Next() {
		var p ProductByContext
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.Category,
			&p.TimesSold, &p.TotalRevenue, &p.AvgPrice); err != nil {
			return nil, fmt.Errorf("scan product by context: %w", err)
		}
		p.Context = contextInfo
		products = append(products, p)
	}
	return products, rows.Err()
}

// SalesHeatmap returns the weekday x hour sales grid.
func (e *AdvancedEngine) SalesHeatmap(ctx context.Context, f Filter) ([]HeatmapCell, error) {
	w := baseWhere(f, true)

	query := fmt.Sprintf(`
		SELECT
			EXTRACT(DOW FROM s.created_at)::int AS weekday,
			EXTRACT(HOUR FROM s.created_at)::int AS hour,
			COUNT(*) AS total_sales,
			SUM(s.total_amount) AS total_revenue,
			AVG(s.total_amount) AS avg_ticket
		FROM sales s
		INNER JOIN stores st ON s.store_id = st.id
		WHERE %s
		GROUP BY weekday, hour
		ORDER BY weekday, hour`, w)

	rows, err := e.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query sales heatmap: %w", err)
	}
	defer rows.Close()

	cells := make([]HeatmapCell, 0)
	for rows.Next() {
		var c HeatmapCell
		if err := rows.Scan(&c.Weekday, &c.Hour, &c.TotalSales, &c.TotalRevenue, &c.AvgTicket); err != nil {
			return nil, fmt.Errorf("scan heatmap cell: %w", err)
		}
		c.WeekdayName = weekdayName(c.Weekday)
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// StorePerformance returns per-store metrics under contextual filters. The
// revenue share is computed against every store in the network, regardless
// of the store allow-list, so participation stays meaningful network-wide.
func (e *AdvancedEngine) StorePerformance(ctx context.Context, f ContextFilter) ([]StoreMetrics, error) {
	unfiltered := f
	unfiltered.StoreIDs = nil
	wAll := contextWhere(unfiltered, true)

	storeClause := ""
	args := wAll.args
	if len(f.StoreIDs) > 0 {
		args = append(args, pq.Array(f.StoreIDs))
		storeClause = fmt.Sprintf(" AND s.store_id = ANY($%d)", len(args))
	}

	query := fmt.Sprintf(`
		WITH all_store_revenue AS (
			SELECT SUM(s.total_amount) AS total_revenue_all
			FROM sales s
			JOIN stores st ON st.id = s.store_id
			WHERE %[1]s
		),
		store_stats AS (
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
			WHERE %[1]s%[2]s
			GROUP BY st.id, st.name, st.city, st.state
		)
		SELECT
			ss.store_id, ss.store_name, ss.city, ss.state,
			ss.total_sales, ss.total_revenue, ss.average_ticket,
			COALESCE(ROUND(ss.total_revenue / NULLIF(ar.total_revenue_all, 0) * 100, 2), 0) AS revenue_share
		FROM store_stats ss
		CROSS JOIN all_store_revenue ar
		ORDER BY ss.total_revenue DESC`, wAll, storeClause)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query store performance: %w", err)
	}
	defer rows.Close()

	stores := make([]StoreMetrics, 0)
	for rows.Next() {
		var s StoreMetrics
		if err := rows.Scan(&s.StoreID, &s.StoreName, &s.City, &s.State,
			&s.TotalSales, &s.TotalRevenue, &s.AverageTicket, &s.RevenueShare); err != nil {
			return nil, fmt.Errorf("scan store performance: %w", err)
		}
		stores = append(stores, s)
	}
	return stores, rows.Err()
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
