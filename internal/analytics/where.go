package analytics

import (
	"fmt"
	"strings"
	"time"
)

// whereBuilder accumulates WHERE clauses with positional parameters so query
// fragments stay aligned with their arguments as optional filters come and go.
type whereBuilder struct {
	clauses []string
	args    []any
}

func newWhere() *whereBuilder {
	return &whereBuilder{}
}

// lit appends a clause with no bound parameter.
func (w *whereBuilder) lit(clause string) *whereBuilder {
	w.clauses = append(w.clauses, clause)
	return w
}

// bind appends a clause whose %d verb receives the next parameter number.
func (w *whereBuilder) bind(format string, arg any) *whereBuilder {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(format, len(w.args)))
	return w
}

func (w *whereBuilder) String() string {
	return strings.Join(w.clauses, " AND ")
}

// next returns the parameter number the following bind would use. Used when
// a parameter has to appear outside the WHERE clause (e.g. LIMIT).
func (w *whereBuilder) next() int {
	return len(w.args) + 1
}

// push appends an argument without a clause; pairs with next().
func (w *whereBuilder) push(arg any) *whereBuilder {
	w.args = append(w.args, arg)
	return w
}

// rangeEnd converts an inclusive end date to the exclusive upper bound used
// in created_at comparisons.
func rangeEnd(endDate time.Time) time.Time {
	return endDate.AddDate(0, 0, 1)
}
