package queue

import (
	"github.com/leaderflow/delivery/internal/service"
)

// Queue hosts the asynq handlers for due direct-path deliveries. The
// reconciliation job remains the sweeper behind it: a task lost across a
// restart is picked up by the next tick instead.
type Queue struct {
	ds service.DeliveryService
}

func NewQueue(ds service.DeliveryService) *Queue {
	return &Queue{ds: ds}
}

const TaskTypeDeliverPost = "delivery:post"

type DeliverPostPayload struct {
	PostID string `json:"post_id"`
}
