package insights

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MesaForge/gastrolytics/internal/database"
)

// ErrInvalidRequest marks caller input the engine refuses to run with.
var ErrInvalidRequest = errors.New("invalid insights request")

// Detector produces zero or more insights for a fixed scope. Implementations
// own their thresholds and query logic.
type Detector interface {
	Name() string
	Detect(ctx context.Context) ([]Insight, error)
}

// Request is one engine invocation.
type Request struct {
	BrandID   int64
	StartDate time.Time
	EndDate   time.Time
	StoreIDs  []int64
	Limit     int
}

// Engine runs the full detector roster over a scope, isolates per-detector
// failures, and returns the merged results sorted by priority, impact and
// confidence.
type Engine struct {
	db     database.Querier
	logger *zap.Logger

	mu         sync.RWMutex
	thresholds Thresholds
}

// NewEngine creates an insight engine. Zero-valued threshold fields fall back
// to the shipped defaults.
func NewEngine(db database.Querier, logger *zap.Logger, thresholds Thresholds) *Engine {
	return &Engine{
		db:         db,
		logger:     logger,
		thresholds: thresholds.merged(),
	}
}

// SetThresholds swaps the trigger policy for subsequent runs. Used by config
// hot reload; in-flight runs keep the policy they started with.
func (e *Engine) SetThresholds(t Thresholds) {
	merged := t.merged()
	e.mu.Lock()
	e.thresholds = merged
	e.mu.Unlock()
}

// currentThresholds snapshots the policy so one run never mixes old and new
// values.
func (e *Engine) currentThresholds() Thresholds {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thresholds
}

// Generate runs every detector against the requested window and returns the
// top insights. A failing detector contributes nothing; only invalid input
// produces an error.
func (e *Engine) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Limit == 0 {
		req.Limit = 5
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	scope := NewScope(req.BrandID, req.StartDate, req.EndDate, req.StoreIDs)
	detectors := e.roster(scope, e.currentThresholds())

	results := make([][]Insight, len(detectors))
	var wg sync.WaitGroup
	for i, det := range detectors {
		wg.Add(1)
		go func(i int, det Detector) {
			defer wg.Done()
			found, err := e.runDetector(ctx, det)
			if err != nil {
				e.logger.Error("insight detector failed",
					zap.String("detector", det.Name()),
					zap.Int64("brand_id", req.BrandID),
					zap.Error(err))
				return
			}
			results[i] = found
		}(i, det)
	}
	wg.Wait()

	// Merge in roster order so the stable sort below is deterministic
	// regardless of which goroutine finished first.
	all := make([]Insight, 0)
	for _, found := range results {
		all = append(all, found...)
	}

	sortInsights(all)

	if len(all) > req.Limit {
		all = all[:req.Limit]
	}

	return &Response{
		Insights:    all,
		Total:       len(all),
		GeneratedAt: time.Now(),
		Period: Period{
			StartDate: req.StartDate.Format("2006-01-02"),
			EndDate:   req.EndDate.Format("2006-01-02"),
			Days:      scope.PeriodDays,
		},
	}, nil
}

func (e *Engine) roster(scope *Scope, t Thresholds) []Detector {
	return []Detector{
		NewCancellationDetector(e.db, scope, t.Cancellation),
		NewChurnRiskDetector(e.db, scope, t.ChurnRisk),
		NewProductOpportunityDetector(e.db, scope, t.Product),
		NewStoreOutlierDetector(e.db, scope, t.StoreOutlier),
	}
}

// runDetector converts panics into errors so one bad detector cannot take
// down the whole run.
func (e *Engine) runDetector(ctx context.Context, det Detector) (found []Insight, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return det.Detect(ctx)
}

func validate(req Request) error {
	if req.BrandID <= 0 {
		return fmt.Errorf("%w: brand id must be positive", ErrInvalidRequest)
	}
	if req.EndDate.Before(req.StartDate) {
		return fmt.Errorf("%w: end date %s before start date %s", ErrInvalidRequest,
			req.EndDate.Format("2006-01-02"), req.StartDate.Format("2006-01-02"))
	}
	if req.Limit < 1 || req.Limit > 20 {
		return fmt.Errorf("%w: limit must be between 1 and 20, got %d", ErrInvalidRequest, req.Limit)
	}
	return nil
}

// sortInsights orders descending by (priority rank, impact value, confidence)
// keeping prior relative order on full ties.
func sortInsights(insights []Insight) {
	sort.SliceStable(insights, func(i, j int) bool {
		a, b := insights[i], insights[j]
		if priorityRank(a.Priority) != priorityRank(b.Priority) {
			return priorityRank(a.Priority) > priorityRank(b.Priority)
		}
		if a.Impact.Value != b.Impact.Value {
			return a.Impact.Value > b.Impact.Value
		}
		return a.ConfidenceScore > b.ConfidenceScore
	})
}
