package load

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macina-app/macina/internal/entity"
)

// Facts are the aggregates derived from a valid candidate set: the shared
// mill and type, and the exact decimal sum of all line weights.
type Facts struct {
	MillID      int64           `json:"mill_id"`
	Type        string          `json:"type"`
	TotalWeight decimal.Decimal `json:"total_weight"`
}

// Validation is the outcome of checking whether a set of orders may share
// one load. Facts is nil unless Valid.
type Validation struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
	Facts  *Facts   `json:"facts,omitempty"`
}

// Validate decides whether the given orders may jointly occupy one load.
// excludingLoadID treats membership of that load as acceptable, so an
// existing load can revalidate its own members. Read-only.
//
// Missing and already-attached orders stop evaluation before the type, mill
// and weight rules run; those rules cannot mean anything over an inconsistent
// set. Past that point every broken rule is reported, not just the first.
func (s *Service) Validate(ctx context.Context, orderIDs []int64, excludingLoadID *int64) (*Validation, error) {
	ctx, span := serviceTracer.Start(ctx, "LoadService.Validate", trace.WithAttributes(attribute.Int("order.count", len(orderIDs))))
	defer span.End()

	orders, violations, err := s.resolveCandidates(ctx, orderIDs, excludingLoadID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(violations) > 0 {
		return &Validation{Valid: false, Errors: violations}, nil
	}

	facts, violations := composeFacts(orders)
	if len(violations) > 0 {
		return &Validation{Valid: false, Errors: violations}, nil
	}
	return &Validation{Valid: true, Facts: &facts}, nil
}

// resolveCandidates loads the orders and applies the short-circuiting checks:
// non-empty set, every id resolves, none attached elsewhere.
func (s *Service) resolveCandidates(ctx context.Context, orderIDs []int64, excludingLoadID *int64) ([]*entity.Order, []string, error) {
	if len(orderIDs) == 0 {
		return nil, []string{"no orders selected"}, nil
	}

	orders, err := s.orders.GetMany(ctx, orderIDs)
	if err != nil {
		return nil, nil, internalErr("failed to resolve orders", err)
	}

	byID := make(map[int64]*entity.Order, len(orders))
	for _, order := range orders {
		byID[order.ID] = order
	}

	var violations []string
	resolved := make([]*entity.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		order, ok := byID[id]
		if !ok {
			violations = append(violations, fmt.Sprintf("order %d not found", id))
			continue
		}
		if order.Attached() && (excludingLoadID == nil || *order.LoadID != *excludingLoadID) {
			violations = append(violations, fmt.Sprintf("order %d is already on load %d", id, *order.LoadID))
			continue
		}
		resolved = append(resolved, order)
	}
	return resolved, violations, nil
}

// composeFacts applies the joint rules over a resolved, unattached set and
// accumulates every violation.
func composeFacts(orders []*entity.Order) (Facts, []string) {
	var violations []string

	types := make(map[string]struct{})
	mills := make(map[int64]struct{})
	total := decimal.Zero
	for _, order := range orders {
		types[order.Type] = struct{}{}
		millID, ok := order.DominantMillID()
		if !ok {
			violations = append(violations, fmt.Sprintf("order %d has no lines", order.ID))
			continue
		}
		mills[millID] = struct{}{}
		total = total.Add(order.TotalWeight())
	}

	if len(types) > 1 {
		violations = append(violations, fmt.Sprintf("orders mix types: %s", joinTypes(types)))
	}
	if len(mills) > 1 {
		violations = append(violations, "orders belong to different mills")
	}
	if total.GreaterThan(entity.MaxLoadWeight) {
		violations = append(violations, fmt.Sprintf("total weight %s exceeds capacity %s", total.StringFixed(2), entity.MaxLoadWeight.StringFixed(2)))
	}
	if len(violations) > 0 {
		return Facts{}, violations
	}

	facts := Facts{TotalWeight: total}
	for t := range types {
		facts.Type = t
	}
	for m := range mills {
		facts.MillID = m
	}
	return facts, nil
}

func joinTypes(types map[string]struct{}) string {
	names := make([]string, 0, len(types))
	for t := range types {
		names = append(names, t)
	}
	sort.Strings(names)
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	return out
}
