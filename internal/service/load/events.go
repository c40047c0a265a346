package load

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/macina-app/macina/internal/entity"
)

// LoadStateChangedEvent is emitted after a lifecycle transition commits.
// PreviousState is empty when the load was just created.
type LoadStateChangedEvent struct {
	LoadID        int64           `json:"load_id"`
	MillID        int64           `json:"mill_id"`
	Type          string          `json:"type"`
	PreviousState string          `json:"previous_state,omitempty"`
	State         string          `json:"state"`
	TotalWeight   decimal.Decimal `json:"total_weight"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (s *Service) publishStateChanged(ctx context.Context, load *entity.Load, previousState string) {
	if !s.messaging.enabled || s.publisher == nil || load == nil {
		return
	}
	event := LoadStateChangedEvent{
		LoadID:        load.ID,
		MillID:        load.MillID,
		Type:          load.Type,
		PreviousState: previousState,
		State:         load.State,
		TotalWeight:   load.TotalWeight,
		OccurredAt:    s.now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("marshal load state changed", zap.Error(err))
		}
		return
	}
	if err := s.publisher.Publish(ctx, []byte(fmt.Sprintf("load-%d", load.ID)), payload); err != nil {
		if s.logger != nil {
			s.logger.Error("publish load state changed", zap.Int64("load_id", load.ID), zap.Error(err))
		}
	}
}
