package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/macina-app/macina/internal/cache"
	"github.com/macina-app/macina/internal/config"
	"github.com/macina-app/macina/internal/entity"
	loadrepo "github.com/macina-app/macina/internal/repository/load"
	orderrepo "github.com/macina-app/macina/internal/repository/order"
	refrepo "github.com/macina-app/macina/internal/repository/reference"
	"github.com/macina-app/macina/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/macina-app/macina/service/composer")

// Orders is the read access the composition view needs.
type Orders interface {
	ListUnassigned(ctx context.Context, orderType string) ([]*entity.Order, error)
	CountByLoad(ctx context.Context, loadID int64) (int, error)
}

// Loads lists the open loads still accepting orders.
type Loads interface {
	List(ctx context.Context, filter loadrepo.Filter) ([]*entity.Load, error)
}

// References resolves display names for mills and clients.
type References interface {
	GetMill(ctx context.Context, id int64) (*entity.Mill, error)
	GetClient(ctx context.Context, id int64) (*entity.Client, error)
}

// OrderSummary is one unassigned order inside a composition group.
type OrderSummary struct {
	ID            int64           `json:"id"`
	ClientID      int64           `json:"client_id"`
	ClientName    string          `json:"client_name,omitempty"`
	TotalWeight   decimal.Decimal `json:"total_weight"`
	EffectiveDate time.Time       `json:"effective_date"`
}

// Group is the set of unassigned orders sharing one mill and type, with its
// ranked combination suggestions.
type Group struct {
	MillID      int64           `json:"mill_id"`
	MillName    string          `json:"mill_name,omitempty"`
	Type        string          `json:"type"`
	Orders      []OrderSummary  `json:"orders"`
	TotalWeight decimal.Decimal `json:"total_weight"`
	Suggestions []Suggestion    `json:"suggestions,omitempty"`
}

// LoadSummary describes an open load for the dispatcher's board.
type LoadSummary struct {
	ID                int64           `json:"id"`
	MillID            int64           `json:"mill_id"`
	MillName          string          `json:"mill_name,omitempty"`
	Type              string          `json:"type"`
	State             string          `json:"state"`
	TotalWeight       decimal.Decimal `json:"total_weight"`
	RemainingCapacity decimal.Decimal `json:"remaining_capacity"`
	FillPercent       decimal.Decimal `json:"fill_percent"`
	Complete          bool            `json:"complete"`
	OrderCount        int             `json:"order_count"`
}

// View is the whole composition board: groups of unassigned orders, the best
// suggestions across all groups, and the open loads.
type View struct {
	Groups         []Group       `json:"groups"`
	TopSuggestions []Suggestion  `json:"top_suggestions,omitempty"`
	OpenLoads      []LoadSummary `json:"open_loads"`
}

// Service assembles the composition view. Read-only; safe to call
// concurrently with any lifecycle mutation.
type Service struct {
	orders     Orders
	loads      Loads
	references References
	cache      cache.Store
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Orders    *orderrepo.Repository
	Loads     *loadrepo.Repository
	Reference *refrepo.Repository
	Cache     cache.Store
	Config    config.Config
	Logger    *zap.Logger
}

// NewService wires a new Service instance for Fx.
func NewService(p Params) *Service {
	return New(p.Orders, p.Loads, p.Reference, p.Cache, p.Config.Cache.DefaultTTL, p.Logger)
}

// New builds a Service from its collaborators.
func New(orders Orders, loads Loads, references References, store cache.Store, cacheTTL time.Duration, logger *zap.Logger) *Service {
	return &Service{
		orders:     orders,
		loads:      loads,
		references: references,
		cache:      store,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// Compose builds the composition view: unassigned orders grouped by mill and
// type with per-group suggestions, the globally re-ranked top suggestions,
// and the open loads.
func (s *Service) Compose(ctx context.Context, orderType string) (*View, error) {
	ctx, span := serviceTracer.Start(ctx, "ComposerService.Compose")
	defer span.End()

	unassigned, err := s.orders.ListUnassigned(ctx, orderType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list unassigned failed")
		return nil, errorbank.Internal("failed to list unassigned orders", errorbank.WithCause(err))
	}

	groups := s.buildGroups(ctx, unassigned)

	var all []Suggestion
	for _, group := range groups {
		all = append(all, group.Suggestions...)
	}
	sortByScore(all)
	if len(all) > DefaultOverall {
		all = all[:DefaultOverall]
	}

	openLoads, err := s.openLoads(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &View{Groups: groups, TopSuggestions: all, OpenLoads: openLoads}, nil
}

type groupKey struct {
	millID    int64
	orderType string
}

func (s *Service) buildGroups(ctx context.Context, orders []*entity.Order) []Group {
	grouped := make(map[groupKey][]*entity.Order)
	for _, order := range orders {
		millID, ok := order.DominantMillID()
		if !ok {
			// An order with no lines cannot be composed.
			continue
		}
		key := groupKey{millID: millID, orderType: order.Type}
		grouped[key] = append(grouped[key], order)
	}

	keys := make([]groupKey, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].millID != keys[j].millID {
			return keys[i].millID < keys[j].millID
		}
		return keys[i].orderType < keys[j].orderType
	})

	groups := make([]Group, 0, len(keys))
	for _, key := range keys {
		members := grouped[key]
		group := Group{
			MillID:   key.millID,
			MillName: s.millName(ctx, key.millID),
			Type:     key.orderType,
		}
		total := decimal.Zero
		for _, order := range members {
			weight := order.TotalWeight()
			total = total.Add(weight)
			group.Orders = append(group.Orders, OrderSummary{
				ID:            order.ID,
				ClientID:      order.ClientID,
				ClientName:    s.clientName(ctx, order.ClientID),
				TotalWeight:   weight,
				EffectiveDate: order.EffectiveDate(),
			})
		}
		group.TotalWeight = total
		group.Suggestions = Suggest(members, DefaultPerGroup)
		groups = append(groups, group)
	}
	return groups
}

func (s *Service) openLoads(ctx context.Context) ([]LoadSummary, error) {
	loads, err := s.loads.List(ctx, loadrepo.Filter{OpenOnly: true})
	if err != nil {
		return nil, errorbank.Internal("failed to list open loads", errorbank.WithCause(err))
	}

	summaries := make([]LoadSummary, 0, len(loads))
	for _, load := range loads {
		count, err := s.orders.CountByLoad(ctx, load.ID)
		if err != nil {
			return nil, errorbank.Internal("failed to count load orders", errorbank.WithCause(err))
		}
		summaries = append(summaries, LoadSummary{
			ID:                load.ID,
			MillID:            load.MillID,
			MillName:          s.millName(ctx, load.MillID),
			Type:              load.Type,
			State:             load.State,
			TotalWeight:       load.TotalWeight,
			RemainingCapacity: load.RemainingCapacity(),
			FillPercent:       load.FillPercent(),
			Complete:          load.Complete(),
			OrderCount:        count,
		})
	}
	return summaries, nil
}

// millName resolves a mill's display name through the cache. Failures only
// cost the name, never the view.
func (s *Service) millName(ctx context.Context, id int64) string {
	return s.cachedName(ctx, fmt.Sprintf("mills:name:%d", id), func() (string, error) {
		mill, err := s.references.GetMill(ctx, id)
		if err != nil {
			return "", err
		}
		return mill.Name, nil
	})
}

func (s *Service) clientName(ctx context.Context, id int64) string {
	return s.cachedName(ctx, fmt.Sprintf("clients:name:%d", id), func() (string, error) {
		client, err := s.references.GetClient(ctx, id)
		if err != nil {
			return "", err
		}
		return client.Name, nil
	})
}

func (s *Service) cachedName(ctx context.Context, key string, resolve func() (string, error)) string {
	if s.cache != nil {
		if bytes, err := s.cache.Get(ctx, key); err == nil {
			var name string
			if err := json.Unmarshal(bytes, &name); err == nil {
				return name
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) && s.logger != nil {
			s.logger.Warn("name cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	name, err := resolve()
	if err != nil {
		if s.logger != nil && !errors.Is(err, refrepo.ErrNotFound) {
			s.logger.Warn("name lookup failed", zap.String("key", key), zap.Error(err))
		}
		return ""
	}
	if s.cache != nil {
		if bytes, err := json.Marshal(name); err == nil {
			if err := s.cache.Set(ctx, key, bytes, s.cacheTTL); err != nil && s.logger != nil {
				s.logger.Warn("name cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return name
}
