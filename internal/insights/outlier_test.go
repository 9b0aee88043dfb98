package insights

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outlierColumns() []string {
	return []string{"id", "name", "revenue", "orders", "avg_revenue", "revenue_diff_pct", "revenue_gap"}
}

func TestStoreOutlierDetector_Underperformer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("store_performance").WillReturnRows(
		sqlmock.NewRows(outlierColumns()).
			AddRow(3, "Old Town", 12000.0, 250, 20000.0, -40.0, -8000.0))
	mock.ExpectQuery("FROM stores").WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(8))
	mock.ExpectQuery("store_performance").WillReturnError(sql.ErrNoRows)

	scope := NewScope(1, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewStoreOutlierDetector(db, scope, DefaultThresholds().StoreOutlier)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 1)

	got := insights[0]
	assert.Equal(t, "store_underperformer_3_1", got.ID)
	assert.Equal(t, TypePerformanceIssue, got.Type)
	assert.Equal(t, PriorityAttention, got.Priority, "40% deviation stays below the critical band")
	assert.InDelta(t, 8000.0, got.Impact.Value, 0.001)
	assert.InDelta(t, 0.9, got.ConfidenceScore, 0.001) // 0.5 + 8/10*0.5
	require.NotNil(t, got.Recommendation.EstimatedROI)
	assert.InDelta(t, 4000.0, *got.Recommendation.EstimatedROI, 0.001)
}

func TestStoreOutlierDetector_SevereUnderperformerIsCritical(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("store_performance").WillReturnRows(
		sqlmock.NewRows(outlierColumns()).
			AddRow(3, "Old Town", 5000.0, 100, 20000.0, -75.0, -15000.0))
	mock.ExpectQuery("FROM stores").WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(8))
	mock.ExpectQuery("store_performance").WillReturnError(sql.ErrNoRows)

	scope := NewScope(1, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewStoreOutlierDetector(db, scope, DefaultThresholds().StoreOutlier)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, PriorityCritical, insights[0].Priority)
}

func TestStoreOutlierDetector_Overperformer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("store_performance").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("store_performance").WillReturnRows(
		sqlmock.NewRows(outlierColumns()).
			AddRow(9, "Riverside", 60000.0, 1200, 40000.0, 50.0, 20000.0))
	mock.ExpectQuery("FROM stores").WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(5))

	scope := NewScope(1, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewStoreOutlierDetector(db, scope, DefaultThresholds().StoreOutlier)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 1)

	got := insights[0]
	assert.Equal(t, "store_overperformer_9_1", got.ID)
	assert.Equal(t, TypeSuccessPattern, got.Type)
	assert.Equal(t, PriorityPositive, got.Priority)
	assert.InDelta(t, 20000.0, got.Impact.Value, 0.001)
	require.NotNil(t, got.Recommendation.EstimatedROI)
	assert.InDelta(t, 8000.0, *got.Recommendation.EstimatedROI, 0.001)
	assert.Equal(t, DifficultyHard, got.Recommendation.Difficulty)
}

func TestStoreOutlierDetector_TwoStoresUseFixedConfidence(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("store_performance").WillReturnRows(
		sqlmock.NewRows(outlierColumns()).
			AddRow(3, "Old Town", 2000.0, 50, 30000.0, -93.3, -28000.0))
	mock.ExpectQuery("FROM stores").WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("store_performance").WillReturnError(sql.ErrNoRows)

	scope := NewScope(1, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewStoreOutlierDetector(db, scope, DefaultThresholds().StoreOutlier)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, 0.4, insights[0].ConfidenceScore,
		"below the 3-store minimum the confidence is fixed regardless of gap size")
}

func TestStoreOutlierDetector_BelowMateriality(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// 12% deviation but only a BRL 600 gap over the 30-day window.
	mock.ExpectQuery("store_performance").WillReturnRows(
		sqlmock.NewRows(outlierColumns()).
			AddRow(3, "Old Town", 4400.0, 90, 5000.0, -12.0, -600.0))
	mock.ExpectQuery("store_performance").WillReturnError(sql.ErrNoRows)

	scope := NewScope(1, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewStoreOutlierDetector(db, scope, DefaultThresholds().StoreOutlier)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, insights, "store count query is skipped when the gap is immaterial")
}
