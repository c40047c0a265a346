package composer

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/macina-app/macina/internal/entity"
)

// Suggestion band and scoring knobs. The band upper bound deliberately sits
// above the hard capacity: suggestions are advisory and the validator stays
// the only gate before a load is actually created.
var (
	bandLow    = decimal.NewFromInt(280)
	bandHigh   = decimal.NewFromInt(320)
	target     = decimal.NewFromInt(300)
	baseScore  = decimal.NewFromInt(100)
	gapPenalty = decimal.NewFromInt(2)
	triplePen  = decimal.NewFromInt(5)
)

// DefaultPerGroup caps suggestions for one (mill, type) group.
const DefaultPerGroup = 5

// DefaultOverall caps suggestions in the aggregate view across groups.
const DefaultOverall = 10

// Suggestion is a ranked candidate combination of unassigned orders.
type Suggestion struct {
	OrderIDs    []int64         `json:"order_ids"`
	MillID      int64           `json:"mill_id"`
	Type        string          `json:"type"`
	TotalWeight decimal.Decimal `json:"total_weight"`
	Score       decimal.Decimal `json:"score"`
}

// Suggest enumerates all pairs and triples of the given orders, keeps the
// combinations whose summed weight falls inside [280, 320], scores them and
// returns the best max results, highest score first. Larger combinations are
// never tried. The input is expected to be one (mill, type) group of
// unassigned orders; Suggest itself never mutates anything.
//
// Pair score: 100 - |total - 300| - 2 * days between the two effective
// dates. Triple score: 100 - |total - 300| - 5.
func Suggest(orders []*entity.Order, max int) []Suggestion {
	if max <= 0 {
		max = DefaultPerGroup
	}
	if len(orders) < 2 {
		return nil
	}

	weights := make([]decimal.Decimal, len(orders))
	for i, order := range orders {
		weights[i] = order.TotalWeight()
	}

	var suggestions []Suggestion
	for i := 0; i < len(orders); i++ {
		for j := i + 1; j < len(orders); j++ {
			total := weights[i].Add(weights[j])
			if !inBand(total) {
				continue
			}
			gap := dateGapDays(orders[i].EffectiveDate(), orders[j].EffectiveDate())
			score := baseScore.
				Sub(target.Sub(total).Abs()).
				Sub(gapPenalty.Mul(decimal.NewFromInt(int64(gap))))
			suggestions = append(suggestions, newSuggestion([]*entity.Order{orders[i], orders[j]}, total, score))
		}
	}
	for i := 0; i < len(orders); i++ {
		for j := i + 1; j < len(orders); j++ {
			for k := j + 1; k < len(orders); k++ {
				total := weights[i].Add(weights[j]).Add(weights[k])
				if !inBand(total) {
					continue
				}
				score := baseScore.Sub(target.Sub(total).Abs()).Sub(triplePen)
				suggestions = append(suggestions, newSuggestion([]*entity.Order{orders[i], orders[j], orders[k]}, total, score))
			}
		}
	}

	sortByScore(suggestions)
	if len(suggestions) > max {
		suggestions = suggestions[:max]
	}
	return suggestions
}

func newSuggestion(orders []*entity.Order, total, score decimal.Decimal) Suggestion {
	ids := make([]int64, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}
	s := Suggestion{OrderIDs: ids, TotalWeight: total, Score: score, Type: orders[0].Type}
	if millID, ok := orders[0].DominantMillID(); ok {
		s.MillID = millID
	}
	return s
}

func inBand(total decimal.Decimal) bool {
	return total.GreaterThanOrEqual(bandLow) && total.LessThanOrEqual(bandHigh)
}

func dateGapDays(a, b time.Time) int {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

func sortByScore(suggestions []Suggestion) {
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score.GreaterThan(suggestions[j].Score)
	})
}
