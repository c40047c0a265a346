package commission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/macina-app/macina/internal/entity"
	orderrepo "github.com/macina-app/macina/internal/repository/order"
	refrepo "github.com/macina-app/macina/internal/repository/reference"
	"github.com/macina-app/macina/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/macina-app/macina/service/commission")

var hundred = decimal.NewFromInt(100)

// Orders reads the orders falling due inside a reporting window.
type Orders interface {
	ListByCollectionDateRange(ctx context.Context, from, to time.Time) ([]*entity.Order, error)
}

// References resolves products and mills for commission terms and names.
type References interface {
	GetProduct(ctx context.Context, id int64) (*entity.Product, error)
	GetMill(ctx context.Context, id int64) (*entity.Mill, error)
}

// MillTotals aggregates one mill's quarter.
type MillTotals struct {
	MillID          int64           `json:"mill_id"`
	MillName        string          `json:"mill_name,omitempty"`
	OrderCount      int             `json:"order_count"`
	TotalWeight     decimal.Decimal `json:"total_weight"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalCommission decimal.Decimal `json:"total_commission"`
}

// Report is the quarterly commission statement, grouped by mill.
type Report struct {
	Year            int             `json:"year"`
	Quarter         int             `json:"quarter"`
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	Mills           []MillTotals    `json:"mills"`
	OrderCount      int             `json:"order_count"`
	TotalWeight     decimal.Decimal `json:"total_weight"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalCommission decimal.Decimal `json:"total_commission"`
}

// Service computes the agent's commissions.
type Service struct {
	orders     Orders
	references References
	logger     *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders    *orderrepo.Repository
	Reference *refrepo.Repository
	Logger    *zap.Logger
}

// NewService wires a new Service instance for Fx.
func NewService(p Params) *Service {
	return New(p.Orders, p.Reference, p.Logger)
}

// New builds a Service from its collaborators.
func New(orders Orders, references References, logger *zap.Logger) *Service {
	return &Service{orders: orders, references: references, logger: logger}
}

// LineCommission computes the agent's cut for one line under the product's
// terms: a percentage of the line total, or a fixed amount per weight unit.
func LineCommission(product *entity.Product, line *entity.OrderLine) decimal.Decimal {
	if product == nil || line == nil {
		return decimal.Zero
	}
	switch product.CommissionType {
	case entity.CommissionFixed:
		return line.Weight.Mul(product.CommissionValue).Round(2)
	default:
		return line.LineTotal.Mul(product.CommissionValue).Div(hundred).Round(2)
	}
}

// QuarterRange returns the first and last day of a calendar quarter.
func QuarterRange(year, quarter int) (time.Time, time.Time, error) {
	if quarter < 1 || quarter > 4 {
		return time.Time{}, time.Time{}, errorbank.BadRequest(fmt.Sprintf("quarter %d out of range", quarter))
	}
	from := time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 3, -1)
	return from, to, nil
}

// QuarterReport builds the quarterly statement: orders whose collection date
// falls in the quarter, grouped per mill with weight, revenue and commission
// totals.
func (s *Service) QuarterReport(ctx context.Context, year, quarter int) (*Report, error) {
	ctx, span := serviceTracer.Start(ctx, "CommissionService.QuarterReport", trace.WithAttributes(
		attribute.Int("report.year", year),
		attribute.Int("report.quarter", quarter),
	))
	defer span.End()

	from, to, err := QuarterRange(year, quarter)
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.ListByCollectionDateRange(ctx, from, to)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to list orders for the quarter", errorbank.WithCause(err))
	}

	report := &Report{
		Year:            year,
		Quarter:         quarter,
		From:            from,
		To:              to,
		TotalWeight:     decimal.Zero,
		TotalRevenue:    decimal.Zero,
		TotalCommission: decimal.Zero,
	}

	products := make(map[int64]*entity.Product)
	byMill := make(map[int64]*MillTotals)
	ordersPerMill := make(map[int64]map[int64]struct{})

	for _, order := range orders {
		report.OrderCount++
		for _, line := range order.Lines {
			product, err := s.product(ctx, products, line.ProductID)
			if err != nil {
				return nil, err
			}
			commission := LineCommission(product, line)

			totals, ok := byMill[line.MillID]
			if !ok {
				totals = &MillTotals{
					MillID:          line.MillID,
					MillName:        s.millName(ctx, line.MillID),
					TotalWeight:     decimal.Zero,
					TotalRevenue:    decimal.Zero,
					TotalCommission: decimal.Zero,
				}
				byMill[line.MillID] = totals
				ordersPerMill[line.MillID] = make(map[int64]struct{})
			}
			totals.TotalWeight = totals.TotalWeight.Add(line.Weight)
			totals.TotalRevenue = totals.TotalRevenue.Add(line.LineTotal)
			totals.TotalCommission = totals.TotalCommission.Add(commission)
			ordersPerMill[line.MillID][order.ID] = struct{}{}

			report.TotalWeight = report.TotalWeight.Add(line.Weight)
			report.TotalRevenue = report.TotalRevenue.Add(line.LineTotal)
			report.TotalCommission = report.TotalCommission.Add(commission)
		}
	}

	millIDs := make([]int64, 0, len(byMill))
	for millID := range byMill {
		millIDs = append(millIDs, millID)
	}
	sort.Slice(millIDs, func(i, j int) bool { return millIDs[i] < millIDs[j] })
	for _, millID := range millIDs {
		totals := byMill[millID]
		totals.OrderCount = len(ordersPerMill[millID])
		report.Mills = append(report.Mills, *totals)
	}
	return report, nil
}

func (s *Service) product(ctx context.Context, seen map[int64]*entity.Product, id int64) (*entity.Product, error) {
	if product, ok := seen[id]; ok {
		return product, nil
	}
	product, err := s.references.GetProduct(ctx, id)
	if errors.Is(err, refrepo.ErrNotFound) {
		return nil, errorbank.NotFound(fmt.Sprintf("product %d not found", id))
	}
	if err != nil {
		return nil, errorbank.Internal("failed to load product", errorbank.WithCause(err))
	}
	seen[id] = product
	return product, nil
}

func (s *Service) millName(ctx context.Context, id int64) string {
	mill, err := s.references.GetMill(ctx, id)
	if err != nil {
		if s.logger != nil && !errors.Is(err, refrepo.ErrNotFound) {
			s.logger.Warn("mill lookup failed", zap.Int64("mill_id", id), zap.Error(err))
		}
		return ""
	}
	return mill.Name
}
