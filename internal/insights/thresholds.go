package insights

// Thresholds collects the trigger policy for every detector. Zero values are
// replaced by DefaultThresholds at engine construction, so a config file only
// needs to name the knobs it overrides.
type Thresholds struct {
	Cancellation CancellationThresholds `yaml:"cancellation"`
	ChurnRisk    ChurnRiskThresholds    `yaml:"churn_risk"`
	Product      ProductThresholds      `yaml:"product_opportunity"`
	StoreOutlier StoreOutlierThresholds `yaml:"store_outlier"`
}

// CancellationThresholds configures the cancellation detector.
type CancellationThresholds struct {
	MinRate             float64 `yaml:"min_rate"`              // percent
	MinOrders           int     `yaml:"min_orders"`            // per (store, channel, weekday, hour) group
	HighDeliveryMinutes float64 `yaml:"high_delivery_minutes"` // avg delivery time considered problematic
	CriticalRate        float64 `yaml:"critical_rate"`         // overall rate above this is critical
	MinMonthlyLoss      float64 `yaml:"min_monthly_loss"`      // BRL, materiality gate for the overall check
}

// ChurnRiskThresholds configures the VIP churn detector.
type ChurnRiskThresholds struct {
	MinLTV           float64 `yaml:"min_ltv"`             // BRL over the trailing year to count as VIP
	MinInactiveDays  int     `yaml:"min_inactive_days"`   // days since last purchase
	MinPurchases     int     `yaml:"min_purchases"`       // completed purchases to count as recurrent
	LTVWindowDays    int     `yaml:"ltv_window_days"`     // trailing window for LTV
	MinRevenueAtRisk float64 `yaml:"min_revenue_at_risk"` // BRL, materiality gate
}

// ProductThresholds configures the premium product opportunity detector.
type ProductThresholds struct {
	MinAvgPrice   float64 `yaml:"min_avg_price"`   // BRL, premium floor
	MaxDailySales float64 `yaml:"max_daily_sales"` // below this it is underutilized
	MinTotalSales int     `yaml:"min_total_sales"` // line items in the window
	MinMonthlyROI float64 `yaml:"min_monthly_roi"` // BRL, materiality gate
}

// StoreOutlierThresholds configures the store over/underperformer detector.
type StoreOutlierThresholds struct {
	MinRevenueDiffPct float64 `yaml:"min_revenue_diff_pct"` // deviation from the cross-store average
	SevereDiffPct     float64 `yaml:"severe_diff_pct"`      // deviation that upgrades to critical
	MinStores         int     `yaml:"min_stores"`           // stores needed for a meaningful baseline
	MinMonthlyGap     float64 `yaml:"min_monthly_gap"`      // BRL, materiality gate
}

// DefaultThresholds returns the fixed policy the detectors shipped with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Cancellation: CancellationThresholds{
			MinRate:             5.0,
			MinOrders:           15,
			HighDeliveryMinutes: 35,
			CriticalRate:        15.0,
			MinMonthlyLoss:      1000,
		},
		ChurnRisk: ChurnRiskThresholds{
			MinLTV:           1000,
			MinInactiveDays:  90,
			MinPurchases:     5,
			LTVWindowDays:    365,
			MinRevenueAtRisk: 2000,
		},
		Product: ProductThresholds{
			MinAvgPrice:   50,
			MaxDailySales: 20,
			MinTotalSales: 50,
			MinMonthlyROI: 1000,
		},
		StoreOutlier: StoreOutlierThresholds{
			MinRevenueDiffPct: 10,
			SevereDiffPct:     50,
			MinStores:         3,
			MinMonthlyGap:     1000,
		},
	}
}

// merged fills zero values in t from the defaults.
func (t Thresholds) merged() Thresholds {
	d := DefaultThresholds()
	if t.Cancellation.MinRate == 0 {
		t.Cancellation.MinRate = d.Cancellation.MinRate
	}
	if t.Cancellation.MinOrders == 0 {
		t.Cancellation.MinOrders = d.Cancellation.MinOrders
	}
	if t.Cancellation.HighDeliveryMinutes == 0 {
		t.Cancellation.HighDeliveryMinutes = d.Cancellation.HighDeliveryMinutes
	}
	if t.Cancellation.CriticalRate == 0 {
		t.Cancellation.CriticalRate = d.Cancellation.CriticalRate
	}
	if t.Cancellation.MinMonthlyLoss == 0 {
		t.Cancellation.MinMonthlyLoss = d.Cancellation.MinMonthlyLoss
	}
	if t.ChurnRisk.MinLTV == 0 {
		t.ChurnRisk.MinLTV = d.ChurnRisk.MinLTV
	}
	if t.ChurnRisk.MinInactiveDays == 0 {
		t.ChurnRisk.MinInactiveDays = d.ChurnRisk.MinInactiveDays
	}
	if t.ChurnRisk.MinPurchases == 0 {
		t.ChurnRisk.MinPurchases = d.ChurnRisk.MinPurchases
	}
	if t.ChurnRisk.LTVWindowDays == 0 {
		t.ChurnRisk.LTVWindowDays = d.ChurnRisk.LTVWindowDays
	}
	if t.ChurnRisk.MinRevenueAtRisk == 0 {
		t.ChurnRisk.MinRevenueAtRisk = d.ChurnRisk.MinRevenueAtRisk
	}
	if t.Product.MinAvgPrice == 0 {
		t.Product.MinAvgPrice = d.Product.MinAvgPrice
	}
	if t.Product.MaxDailySales == 0 {
		t.Product.MaxDailySales = d.Product.MaxDailySales
	}
	if t.Product.MinTotalSales == 0 {
		t.Product.MinTotalSales = d.Product.MinTotalSales
	}
	if t.Product.MinMonthlyROI == 0 {
		t.Product.MinMonthlyROI = d.Product.MinMonthlyROI
	}
	if t.StoreOutlier.MinRevenueDiffPct == 0 {
		t.StoreOutlier.MinRevenueDiffPct = d.StoreOutlier.MinRevenueDiffPct
	}
	if t.StoreOutlier.SevereDiffPct == 0 {
		t.StoreOutlier.SevereDiffPct = d.StoreOutlier.SevereDiffPct
	}
	if t.StoreOutlier.MinStores == 0 {
		t.StoreOutlier.MinStores = d.StoreOutlier.MinStores
	}
	if t.StoreOutlier.MinMonthlyGap == 0 {
		t.StoreOutlier.MinMonthlyGap = d.StoreOutlier.MinMonthlyGap
	}
	return t
}
