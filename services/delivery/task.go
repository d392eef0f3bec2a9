package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"vayva-webhooks/pkg/task"
)

const TypeDeliverWebhook = "webhook:deliver"

type deliverPayload struct {
	DeliveryID string `json:"delivery_id"`
	TenantID   string `json:"tenant_id"`
}

// NewDeliverTask builds the queue task for a single delivery attempt.
// Retries are owned by the delivery row state machine, not by the queue.
func NewDeliverTask(deliveryID, tenantID string) (*asynq.Task, error) {
	payload, err := json.Marshal(deliverPayload{DeliveryID: deliveryID, TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDeliverWebhook, payload,
		asynq.Queue(task.QueueWebhooks),
		asynq.MaxRetry(0),
	), nil
}

func (s *Service) HandleDeliverTask(ctx context.Context, t *asynq.Task) error {
	var payload deliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal deliver payload: %w", err)
	}
	return s.engine.Process(ctx, payload.DeliveryID)
}

// RegisterHandlers attaches the delivery task handlers to the worker mux.
func RegisterHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(TypeDeliverWebhook, s.HandleDeliverTask)
}
