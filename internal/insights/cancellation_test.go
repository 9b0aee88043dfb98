package insights

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patternColumns() []string {
	return []string{
		"store_id", "store_name", "channel_id", "channel_name", "weekday", "hour",
		"total_orders", "cancelled_orders", "cancellation_rate", "lost_revenue", "avg_delivery_minutes",
	}
}

func TestCancellationDetector_DeliveryIssuePattern(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// 20 orders, 2 cancelled (10%), avg delivery 40 min, BRL 500 average
	// order value, over a 30-day window.
	mock.ExpectQuery("cancellation_analysis").WillReturnRows(
		sqlmock.NewRows(patternColumns()).
			AddRow(3, "Harbor Mall", 2, "iFood", 4, 19, 20, 2, 10.0, 1000.0, 40.0))
	mock.ExpectQuery("AS total_orders").WillReturnError(sql.ErrNoRows)

	scope := NewScope(1, date(2025, 5, 1), date(2025, 5, 30), nil)
	require.Equal(t, 30, scope.PeriodDays)

	det := NewCancellationDetector(db, scope, DefaultThresholds().Cancellation)
	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 1)

	got := insights[0]
	assert.Equal(t, "cancellation_pattern_3_2_4_19", got.ID)
	assert.Equal(t, TypePerformanceIssue, got.Type)
	assert.Equal(t, PriorityCritical, got.Priority)
	assert.Equal(t, "High cancellation volume driven by slow delivery", got.Title)
	assert.InDelta(t, 1000.0, got.Impact.Value, 0.001) // 1000 / 30 * 30
	assert.Equal(t, PeriodMonthly, got.Impact.Period)
	assert.Equal(t, "BRL", got.Impact.Currency)
	assert.InDelta(t, 0.6, got.ConfidenceScore, 0.001) // 0.5 + 20/100*0.5
	assert.Equal(t, []int64{3}, got.Context.AffectedStores)
	assert.Equal(t, []int64{2}, got.Context.AffectedChannels)
	assert.Equal(t, []string{"Thursday"}, got.Context.AffectedDays)
	assert.Equal(t, []int{19}, got.Context.AffectedHours)
	assert.Equal(t, 20, got.Context.DataPoints)
	require.NotNil(t, got.Recommendation.EstimatedROI)
	assert.InDelta(t, 700.0, *got.Recommendation.EstimatedROI, 0.001)
}

func TestCancellationDetector_RatePatternWithoutDeliveryData(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("cancellation_analysis").WillReturnRows(
		sqlmock.NewRows(patternColumns()).
			AddRow(3, "Harbor Mall", 1, "Counter", 6, 12, 40, 4, 10.0, 800.0, nil))
	mock.ExpectQuery("AS total_orders").WillReturnError(sql.ErrNoRows)

	scope := NewScope(1, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewCancellationDetector(db, scope, DefaultThresholds().Cancellation)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "Critical cancellation rate: 10.0%", insights[0].Title)
	assert.Contains(t, insights[0].Description, "4 of 40 orders")
	assert.Contains(t, insights[0].Description, "Saturday")
}

func TestCancellationDetector_OverallRate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("cancellation_analysis").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("AS total_orders").WillReturnRows(
		sqlmock.NewRows([]string{"total_orders", "cancelled_orders", "cancellation_rate", "lost_revenue"}).
			AddRow(1000, 180, 18.0, 27000.0))

	scope := NewScope(9, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewCancellationDetector(db, scope, DefaultThresholds().Cancellation)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 1)

	got := insights[0]
	assert.Equal(t, "overall_cancellation_9", got.ID)
	assert.Equal(t, PriorityCritical, got.Priority, "rate above 15% is critical")
	assert.InDelta(t, 27000.0, got.Impact.Value, 0.001)
	assert.InDelta(t, 1.0, got.ConfidenceScore, 0.001, "0.6 + 1000/500*0.4 capped at 1")
	require.NotNil(t, got.Recommendation.EstimatedROI)
	assert.InDelta(t, 16200.0, *got.Recommendation.EstimatedROI, 0.001)
}

func TestCancellationDetector_OverallRateAttentionBand(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("cancellation_analysis").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("AS total_orders").WillReturnRows(
		sqlmock.NewRows([]string{"total_orders", "cancelled_orders", "cancellation_rate", "lost_revenue"}).
			AddRow(500, 35, 7.0, 5000.0))

	scope := NewScope(9, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewCancellationDetector(db, scope, DefaultThresholds().Cancellation)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, PriorityAttention, insights[0].Priority)
}

func TestCancellationDetector_OverallBelowMateriality(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("cancellation_analysis").WillReturnError(sql.ErrNoRows)
	// 6% rate but only BRL 600 lost over 30 days: monthly loss below 1000.
	mock.ExpectQuery("AS total_orders").WillReturnRows(
		sqlmock.NewRows([]string{"total_orders", "cancelled_orders", "cancellation_rate", "lost_revenue"}).
			AddRow(200, 12, 6.0, 600.0))

	scope := NewScope(9, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewCancellationDetector(db, scope, DefaultThresholds().Cancellation)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, insights, "sub-threshold findings are suppressed, not returned with a low value")
}

func TestCancellationDetector_Idempotent(t *testing.T) {
	run := func() Insight {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("cancellation_analysis").WillReturnRows(
			sqlmock.NewRows(patternColumns()).
				AddRow(3, "Harbor Mall", 2, "iFood", 4, 19, 20, 2, 10.0, 1000.0, 40.0))
		mock.ExpectQuery("AS total_orders").WillReturnError(sql.ErrNoRows)

		scope := NewScope(1, date(2025, 5, 1), date(2025, 5, 30), nil)
		det := NewCancellationDetector(db, scope, DefaultThresholds().Cancellation)
		insights, err := det.Detect(context.Background())
		require.NoError(t, err)
		require.Len(t, insights, 1)
		return insights[0]
	}

	first, second := run(), run()
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Type, second.Type)
	assert.Equal(t, first.Priority, second.Priority)
	assert.Equal(t, first.Impact.Value, second.Impact.Value)
}
