package insights

import "time"

// Insight types
const (
	TypePerformanceIssue = "performance_issue"
	TypeOpportunity      = "opportunity"
	TypeChurnRisk        = "churn_risk"
	TypeSuccessPattern   = "success_pattern"
)

// Priorities, ordered by severity
const (
	PriorityCritical  = "critical"
	PriorityAttention = "attention"
	PriorityPositive  = "positive"
)

// Impact periods
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodYearly  = "yearly"
)

// Recommendation difficulties
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Impact is the single scalar financial estimate attached to an insight.
type Impact struct {
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Period   string  `json:"period"`
}

// Context describes the entities and time windows an insight applies to.
// DataPoints is the number of underlying rows supporting the finding and
// drives the confidence score.
type Context struct {
	AffectedStores   []int64  `json:"affected_stores,omitempty"`
	AffectedChannels []int64  `json:"affected_channels,omitempty"`
	AffectedDays     []string `json:"affected_days,omitempty"`
	AffectedHours    []int    `json:"affected_hours,omitempty"`
	AffectedProducts []int64  `json:"affected_products,omitempty"`
	DataPoints       int      `json:"data_points"`
}

// Recommendation is the actionable follow-up attached to an insight.
type Recommendation struct {
	Action       string   `json:"action"`
	EstimatedROI *float64 `json:"estimated_roi,omitempty"`
	Difficulty   string   `json:"difficulty"`
	LinkTo       string   `json:"link_to,omitempty"`
}

// Insight is an immutable finding produced by a detector. The ID is
// deterministic for a given dataset so repeated runs de-duplicate cleanly.
type Insight struct {
	ID              string         `json:"id"`
	Type            string         `json:"type"`
	Priority        string         `json:"priority"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Impact          Impact         `json:"impact"`
	Context         Context        `json:"context"`
	Recommendation  Recommendation `json:"recommendation"`
	DetectedAt      time.Time      `json:"detected_at"`
	ConfidenceScore float64        `json:"confidence_score"`
}

// Period echoes the analysis window back to the caller.
type Period struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Days      int    `json:"days"`
}

// Response is the result of one engine run.
type Response struct {
	Insights    []Insight `json:"insights"`
	Total       int       `json:"total"`
	GeneratedAt time.Time `json:"generated_at"`
	Period      Period    `json:"period"`
}

// priorityRank converts a priority tag to its sort weight.
func priorityRank(priority string) int {
	switch priority {
	case PriorityCritical:
		return 3
	case PriorityAttention:
		return 2
	case PriorityPositive:
		return 1
	default:
		return 0
	}
}

func roiPtr(v float64) *float64 {
	return &v
}
