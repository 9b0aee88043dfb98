package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testContextFilter() ContextFilter {
	return ContextFilter{Filter: testFilter()}
}

func TestAdvancedEngine_DeliveryPerformance(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("AS on_time_deliveries").
		WillReturnRows(sqlmock.NewRows([]string{
			"avg_delivery_time", "avg_production_time", "total_deliveries", "on_time_deliveries",
		}).AddRow(1500.0, 900.0, 200, 170))
	mock.ExpectQuery("AS cancelled_orders").
		WillReturnRows(sqlmock.NewRows([]string{"total_orders", "cancelled_orders"}).
			AddRow(250, 10))
	mock.ExpectQuery("delivery_addresses").
		WillReturnRows(sqlmock.NewRows([]string{
			"city", "state", "total_deliveries", "avg_delivery_time", "avg_production_time", "on_time_rate",
		}).AddRow("Sao Paulo", "SP", 120, 1400.0, 880.0, 88.5))
	mock.ExpectQuery("GROUP BY DATE").
		WillReturnRows(sqlmock.NewRows([]string{
			"date", "avg_delivery_time", "avg_production_time", "total_deliveries", "on_time_rate",
		}).AddRow("2025-01-01", 1600.0, 940.0, 18, 83.3))

	e := NewAdvancedEngine(db, zap.NewNop())
	overall, regions, trend, err := e.DeliveryPerformance(context.Background(), testContextFilter())
	require.NoError(t, err)

	assert.Equal(t, 85.0, overall.OnTimeRate)
	assert.Equal(t, 4.0, overall.CancellationRate)
	require.Len(t, regions, 1)
	assert.Equal(t, "Sao Paulo", regions[0].City)
	require.Len(t, trend, 1)
	assert.Equal(t, "2025-01-01", trend[0].Date)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedEngine_DeliveryPerformance_NoDeliveries(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("AS on_time_deliveries").
		WillReturnRows(sqlmock.NewRows([]string{
			"avg_delivery_time", "avg_production_time", "total_deliveries", "on_time_deliveries",
		}).AddRow(0.0, 0.0, 0, 0))
	mock.ExpectQuery("AS cancelled_orders").
		WillReturnRows(sqlmock.NewRows([]string{"total_orders", "cancelled_orders"}).AddRow(0, 0))
	mock.ExpectQuery("delivery_addresses").
		WillReturnRows(sqlmock.NewRows([]string{
			"city", "state", "total_deliveries", "avg_delivery_time", "avg_production_time", "on_time_rate",
		}))
	mock.ExpectQuery("GROUP BY DATE").
		WillReturnRows(sqlmock.NewRows([]string{
			"date", "avg_delivery_time", "avg_production_time", "total_deliveries", "on_time_rate",
		}))

	e := NewAdvancedEngine(db, zap.NewNop())
	overall, regions, trend, err := e.DeliveryPerformance(context.Background(), testContextFilter())
	require.NoError(t, err)

	assert.Zero(t, overall.OnTimeRate)
	assert.Zero(t, overall.CancellationRate)
	assert.Empty(t, regions)
	assert.Empty(t, trend)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedEngine_CustomerRFM(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	ref := date(2025, 1, 31)
	mock.ExpectQuery("rfm_segment").
		WithArgs(date(2025, 1, 1), date(2025, 2, 1), ref, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"customer_id", "customer_name", "recency_days", "frequency", "monetary", "last_purchase_date", "rfm_segment",
		}).
			AddRow(101, "Maria Silva", 3, 8, 920.0, "2025-01-28", SegmentVIP).
			AddRow(102, "Anonymous", 45, 4, 310.0, "2024-12-17", SegmentAtRisk))

	e := NewAdvancedEngine(db, zap.NewNop())
	customers, err := e.CustomerRFM(context.Background(), testFilter(), ref)
	require.NoError(t, err)

	require.Len(t, customers, 2)
	assert.Equal(t, SegmentVIP, customers[0].Segment)
	assert.Equal(t, 920.0, customers[0].Monetary)
	assert.Equal(t, SegmentAtRisk, customers[1].Segment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedEngine_CustomerRFM_DefaultsReferenceToPeriodEnd(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("rfm_segment").
		WithArgs(date(2025, 1, 1), date(2025, 2, 1), date(2025, 1, 31), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"customer_id", "customer_name", "recency_days", "frequency", "monetary", "last_purchase_date", "rfm_segment",
		}))

	e := NewAdvancedEngine(db, zap.NewNop())
	_, err = e.CustomerRFM(context.Background(), testFilter(), time.Time{})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedEngine_ChurnRiskCustomers_Defaults(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("purchase_intervals").
		WithArgs(3, 30, 100, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"customer_id", "customer_name", "email", "phone_number",
			"total_purchases", "total_spent", "last_purchase_date",
			"days_since_last_purchase", "avg_days_between_purchases",
			"favorite_channel", "favorite_product",
		}).AddRow(55, "Joao Santos", "joao@example.com", "+5511999990000",
			12, 1840.0, "2024-11-20", 72, 9.4, "iFood", "Picanha na Brasa"))

	e := NewAdvancedEngine(db, zap.NewNop())
	customers, err := e.ChurnRiskCustomers(context.Background(), ChurnParams{BrandID: 7})
	require.NoError(t, err)

	require.Len(t, customers, 1)
	assert.Equal(t, "Joao Santos", customers[0].CustomerName)
	assert.Equal(t, 72, customers[0].DaysSinceLastPurchase)
	assert.Equal(t, "iFood", customers[0].FavoriteChannel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedEngine_ProductsByContext(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	weekday := 5
	hourStart, hourEnd := 18, 22
	channelID := int64(3)
	f := testContextFilter()
	f.Weekday = &weekday
	f.HourStart = &hourStart
	f.HourEnd = &hourEnd
	f.ChannelID = &channelID

	mock.ExpectQuery("SELECT name FROM channels").
		WithArgs(channelID).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("iFood"))
	mock.ExpectQuery("AS times_sold").
		WillReturnRows(sqlmock.NewRows([]string{
			"product_id", "product_name", "category", "times_sold", "total_revenue", "avg_price",
		}).AddRow(21, "Pizza Margherita", "Pizzas", 64, 3840.0, 60.0))

	e := NewAdvancedEngine(db, zap.NewNop())
	products, err := e.ProductsByContext(context.Background(), f, 0)
	require.NoError(t, err)

	require.Len(t, products, 1)
	assert.Equal(t, map[string]string{
		"weekday":    "Friday",
		"hour_range": "18:00-22:00",
		"channel":    "iFood",
	}, products[0].Context)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedEngine_SalesHeatmap(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("AS weekday").
		WillReturnRows(sqlmock.NewRows([]string{"weekday", "hour", "total_sales", "total_revenue", "avg_ticket"}).
			AddRow(6, 20, 42, 2940.0, 70.0))

	e := NewAdvancedEngine(db, zap.NewNop())
	cells, err := e.SalesHeatmap(context.Background(), testFilter())
	require.NoError(t, err)

	require.Len(t, cells, 1)
	assert.Equal(t, "Saturday", cells[0].WeekdayName)
	assert.Equal(t, 20, cells[0].Hour)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancedEngine_StorePerformance_ShareAgainstNetwork(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	f := testContextFilter()
	f.StoreIDs = []int64{1}

	// Four positional args: range start, range end, brand, then the store
	// allow-list appended after the shared clauses.
	mock.ExpectQuery("all_store_revenue").
		WillReturnRows(sqlmock.NewRows([]string{
			"store_id", "store_name", "city", "state",
			"total_sales", "total_revenue", "average_ticket", "revenue_share",
		}).AddRow(1, "Centro", "Sao Paulo", "SP", 300, 18000.0, 60.0, 22.5))

	e := NewAdvancedEngine(db, zap.NewNop())
	stores, err := e.StorePerformance(context.Background(), f)
	require.NoError(t, err)

	require.Len(t, stores, 1)
	assert.Equal(t, 22.5, stores[0].RevenueShare)
	assert.NoError(t, mock.ExpectationsWereMet())
}
