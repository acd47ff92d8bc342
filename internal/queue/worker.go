package queue

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

func (q *Queue) HandleDeliverPostTask(ctx context.Context, task *asynq.Task) error {
	var payload DeliverPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	// DeliverDirect re-checks the post is still pending and due, so a task
	// that raced the reconciliation sweep is a no-op.
	return q.ds.DeliverDirect(ctx, payload.PostID)
}
