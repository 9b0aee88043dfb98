package analytics

import "time"

// Filter is the common query scope for aggregation endpoints. Nil/empty
// slices mean no restriction. Dates are inclusive calendar dates.
type Filter struct {
	StartDate  time.Time
	EndDate    time.Time
	BrandID    int64
	StoreIDs   []int64
	ChannelIDs []int64
}

// ContextFilter narrows a query to a specific weekday, hour range or channel
// on top of the common scope.
type ContextFilter struct {
	Filter
	Weekday   *int
	HourStart *int
	HourEnd   *int
	ChannelID *int64
}

// Brand is a row from the brand catalog.
type Brand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Store is a row from the store catalog.
type Store struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	City     string `json:"city"`
	State    string `json:"state"`
	IsActive bool   `json:"is_active"`
}

// OverviewMetrics are the headline KPIs for a period.
type OverviewMetrics struct {
	TotalSales       int     `json:"total_sales"`
	TotalRevenue     float64 `json:"total_revenue"`
	AverageTicket    float64 `json:"average_ticket"`
	CompletedSales   int     `json:"completed_sales"`
	CancelledSales   int     `json:"cancelled_sales"`
	CancellationRate float64 `json:"cancellation_rate"`
	TotalCustomers   int     `json:"total_customers"`
}

// ProductRanking is one entry of the top-products list.
type ProductRanking struct {
	ProductID     int64   `json:"product_id"`
	ProductName   string  `json:"product_name"`
	Category      string  `json:"category"`
	TimesSold     int     `json:"times_sold"`
	TotalQuantity float64 `json:"total_quantity"`
	TotalRevenue  float64 `json:"total_revenue"`
}

// ChannelMetrics aggregates completed sales per channel.
type ChannelMetrics struct {
	ChannelID     int64   `json:"channel_id"`
	ChannelName   string  `json:"channel_name"`
	ChannelType   string  `json:"channel_type"`
	TotalSales    int     `json:"total_sales"`
	TotalRevenue  float64 `json:"total_revenue"`
	AverageTicket float64 `json:"average_ticket"`
	RevenueShare  float64 `json:"revenue_share"`
}

// StoreMetrics aggregates completed sales per store.
type StoreMetrics struct {
	StoreID       int64   `json:"store_id"`
	StoreName     string  `json:"store_name"`
	City          string  `json:"city"`
	State         string  `json:"state"`
	TotalSales    int     `json:"total_sales"`
	TotalRevenue  float64 `json:"total_revenue"`
	AverageTicket float64 `json:"average_ticket"`
	RevenueShare  float64 `json:"revenue_share"`
}

// SalesTrendPoint is one day of the daily trend.
type SalesTrendPoint struct {
	Date           string  `json:"date"`
	TotalSales     int     `json:"total_sales"`
	TotalRevenue   float64 `json:"total_revenue"`
	AverageTicket  float64 `json:"average_ticket"`
	CompletedSales int     `json:"completed_sales"`
	CancelledSales int     `json:"cancelled_sales"`
}

// HourlyBucket is the sales distribution for one hour of day.
type HourlyBucket struct {
	Hour          int     `json:"hour"`
	TotalSales    int     `json:"total_sales"`
	TotalRevenue  float64 `json:"total_revenue"`
	AverageTicket float64 `json:"average_ticket"`
}

// WeekdayBucket is the sales distribution for one day of week (0 = Sunday).
type WeekdayBucket struct {
	Weekday       int     `json:"weekday"`
	WeekdayName   string  `json:"weekday_name"`
	TotalSales    int     `json:"total_sales"`
	TotalRevenue  float64 `json:"total_revenue"`
	AverageTicket float64 `json:"average_ticket"`
}

// CategoryMetrics aggregates line items per product category.
type CategoryMetrics struct {
	CategoryName string  `json:"category_name"`
	TotalSales   int     `json:"total_sales"`
	TotalRevenue float64 `json:"total_revenue"`
	AveragePrice float64 `json:"average_price"`
	RevenueShare float64 `json:"revenue_share"`
}

// DeliveryPerformance summarizes delivery speed and reliability. Times are
// in seconds; on-time means production plus delivery within 45 minutes.
type DeliveryPerformance struct {
	AvgDeliveryTime   float64 `json:"avg_delivery_time"`
	AvgProductionTime float64 `json:"avg_production_time"`
	TotalDeliveries   int     `json:"total_deliveries"`
	OnTimeDeliveries  int     `json:"on_time_deliveries"`
	OnTimeRate        float64 `json:"on_time_rate"`
	TotalOrders       int     `json:"total_orders"`
	CancelledOrders   int     `json:"cancelled_orders"`
	CancellationRate  float64 `json:"cancellation_rate"`
}

// DeliveryRegion is delivery performance grouped by destination city.
type DeliveryRegion struct {
	City              string  `json:"city"`
	State             string  `json:"state"`
	TotalDeliveries   int     `json:"total_deliveries"`
	AvgDeliveryTime   float64 `json:"avg_delivery_time"`
	AvgProductionTime float64 `json:"avg_production_time"`
	OnTimeRate        float64 `json:"on_time_rate"`
}

// DeliveryTrendPoint is one day of the delivery trend.
type DeliveryTrendPoint struct {
	Date              string  `json:"date"`
	AvgDeliveryTime   float64 `json:"avg_delivery_time"`
	AvgProductionTime float64 `json:"avg_production_time"`
	TotalDeliveries   int     `json:"total_deliveries"`
	OnTimeRate        float64 `json:"on_time_rate"`
}

// RFM segments
const (
	SegmentVIP      = "VIP"
	SegmentRegular  = "Regular"
	SegmentAtRisk   = "At Risk"
	SegmentInactive = "Inactive"
	SegmentNew      = "New"
)

// CustomerRFM is one customer's recency/frequency/monetary profile.
type CustomerRFM struct {
	CustomerID       int64   `json:"customer_id"`
	CustomerName     string  `json:"customer_name"`
	RecencyDays      int     `json:"recency_days"`
	Frequency        int     `json:"frequency"`
	Monetary         float64 `json:"monetary"`
	LastPurchaseDate string  `json:"last_purchase_date"`
	Segment          string  `json:"rfm_segment"`
}

// ChurnRiskCustomer is a recurrent customer who stopped coming back.
type ChurnRiskCustomer struct {
	CustomerID            int64   `json:"customer_id"`
	CustomerName          string  `json:"customer_name"`
	Email                 string  `json:"email,omitempty"`
	PhoneNumber           string  `json:"phone_number,omitempty"`
	TotalPurchases        int     `json:"total_purchases"`
	TotalSpent            float64 `json:"total_spent"`
	LastPurchaseDate      string  `json:"last_purchase_date"`
	DaysSinceLastPurchase int     `json:"days_since_last_purchase"`
	AvgDaysBetween        float64 `json:"avg_days_between_purchases"`
	FavoriteChannel       string  `json:"favorite_channel"`
	FavoriteProduct       string  `json:"favorite_product,omitempty"`
}

// ProductByContext is a product ranked within a contextual slice.
type ProductByContext struct {
	ProductID    int64             `json:"product_id"`
	ProductName  string            `json:"product_name"`
	Category     string            `json:"category"`
	TimesSold    int               `json:"times_sold"`
	TotalRevenue float64           `json:"total_revenue"`
	AvgPrice     float64           `json:"avg_price"`
	Context      map[string]string `json:"context"`
}

// HeatmapCell is one (weekday, hour) cell of the sales heatmap.
type HeatmapCell struct {
	Weekday      int     `json:"weekday"`
	WeekdayName  string  `json:"weekday_name"`
	Hour         int     `json:"hour"`
	TotalSales   int     `json:"total_sales"`
	TotalRevenue float64 `json:"total_revenue"`
	AvgTicket    float64 `json:"avg_ticket"`
}

// weekdayNames is indexed by Postgres DOW (0 = Sunday).
var weekdayNames = [7]string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

func weekdayName(dow int) string {
	if dow < 0 || dow > 6 {
		return "unknown"
	}
	return weekdayNames[dow]
}
