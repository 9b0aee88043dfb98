package insights

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productColumns() []string {
	return []string{"id", "name", "avg_price", "total_sales", "avg_daily_sales"}
}

func TestProductOpportunityDetector_Fires(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// R$ 80 product selling 4x/day: uplift 2/day * 80 * 30 = R$ 4800/month.
	mock.ExpectQuery("product_stats").WillReturnRows(
		sqlmock.NewRows(productColumns()).AddRow(42, "Picanha Premium", 80.0, 120, 4.0))

	scope := NewScope(5, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewProductOpportunityDetector(db, scope, DefaultThresholds().Product)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 1)

	got := insights[0]
	assert.Equal(t, "product_opportunity_42_5", got.ID)
	assert.Equal(t, TypeOpportunity, got.Type)
	assert.Equal(t, PriorityAttention, got.Priority)
	assert.InDelta(t, 4800.0, got.Impact.Value, 0.001)
	assert.Equal(t, PeriodMonthly, got.Impact.Period)
	assert.Equal(t, []int64{42}, got.Context.AffectedProducts)
	assert.Equal(t, 120, got.Context.DataPoints)
	assert.InDelta(t, 0.8, got.ConfidenceScore, 0.001) // 0.5 + 120/200*0.5
	require.NotNil(t, got.Recommendation.EstimatedROI)
	assert.InDelta(t, 3360.0, *got.Recommendation.EstimatedROI, 0.001)
}

func TestProductOpportunityDetector_BelowROIThreshold(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Uplift: 0.25/day * 55 * 30 = 412.50/month, ROI 288.75 < 1000.
	mock.ExpectQuery("product_stats").WillReturnRows(
		sqlmock.NewRows(productColumns()).AddRow(7, "Cheesecake", 55.0, 60, 0.5))

	scope := NewScope(5, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewProductOpportunityDetector(db, scope, DefaultThresholds().Product)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, insights)
}

func TestProductOpportunityDetector_TruncatesLongNames(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	longName := "Super Mega Deluxe Gourmet Artisanal Burger with Extra Everything and More"
	mock.ExpectQuery("product_stats").WillReturnRows(
		sqlmock.NewRows(productColumns()).AddRow(8, longName, 90.0, 200, 5.0))

	scope := NewScope(5, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewProductOpportunityDetector(db, scope, DefaultThresholds().Product)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Contains(t, insights[0].Title, longName[:50])
	assert.NotContains(t, insights[0].Title, longName)
}

func TestProductOpportunityDetector_TruncationKeepsRunesWhole(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Accented name whose 50th byte falls inside a rune.
	longName := "Picanha Grelhada à Moda da Casa com Acompanhamentos Tradicionais e Molho Especial"
	mock.ExpectQuery("product_stats").WillReturnRows(
		sqlmock.NewRows(productColumns()).AddRow(9, longName, 95.0, 200, 5.0))

	scope := NewScope(5, date(2025, 5, 1), date(2025, 5, 30), nil)
	det := NewProductOpportunityDetector(db, scope, DefaultThresholds().Product)

	insights, err := det.Detect(context.Background())
	require.NoError(t, err)
	require.Len(t, insights, 1)

	assert.True(t, utf8.ValidString(insights[0].Title))
	assert.True(t, utf8.ValidString(insights[0].Recommendation.Action))
	assert.Contains(t, insights[0].Title, string([]rune(longName)[:50]))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 50))
	assert.Equal(t, "abc", truncate("abcdef", 3))

	cut := truncate("Informação", 9)
	assert.Equal(t, "Informaçã", cut)
	assert.True(t, utf8.ValidString(cut))
}
