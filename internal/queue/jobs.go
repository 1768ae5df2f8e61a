package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// ValuateUploadTask recomputes the values of an upload's orders. It is
	// scheduled when the inline pass fails and by the stale sweeper.
	ValuateUploadTask = "upload:valuate"

	maxRetry = 8
)

// ValuatePayload is serialized into the task payload.
type ValuatePayload struct {
	UploadID string `json:"upload_id"`
}

// NewValuateTask builds the valuation task for an upload. The task id is the
// upload id, so at most one job per upload is queued at a time.
func NewValuateTask(uploadID string) (*asynq.Task, error) {
	data, err := json.Marshal(ValuatePayload{UploadID: uploadID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ValuateUploadTask, data,
		asynq.TaskID(uploadID),
		asynq.MaxRetry(maxRetry),
	), nil
}

// Enqueuer is the part of *asynq.Client used by Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Inspector is the part of *asynq.Inspector used by Client.
type Inspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// Client enqueues valuation jobs on asynq.
type Client struct {
	client    Enqueuer
	inspector Inspector
	queue     string
}

// NewClient wraps an asynq client. The inspector resolves task id conflicts
// with jobs that have already finished.
func NewClient(client Enqueuer, inspector Inspector) *Client {
	return &Client{client: client, inspector: inspector, queue: "default"}
}

// ScheduleValuation enqueues a valuation job. A job still pending, scheduled,
// retrying or running for the upload counts as scheduled. A job that gave up
// (archived) or completed still holds the upload's task id, so it is deleted
// and the job enqueued again.
func (c *Client) ScheduleValuation(ctx context.Context, uploadID string) error {
	task, err := NewValuateTask(uploadID)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	if err == nil {
		return nil
	}
	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue valuation task: %w", err)
	}

	info, err := c.inspector.GetTaskInfo(c.queue, uploadID)
	switch {
	case errors.Is(err, asynq.ErrTaskNotFound):
		// Finished and cleaned up between the two calls.
	case err != nil:
		return fmt.Errorf("inspect valuation task: %w", err)
	case info.State == asynq.TaskStateArchived || info.State == asynq.TaskStateCompleted:
		if err := c.inspector.DeleteTask(c.queue, uploadID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
			return fmt.Errorf("delete %s valuation task: %w", info.State, err)
		}
	default:
		return nil
	}

	_, err = c.client.EnqueueContext(ctx, task)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("re-enqueue valuation task: %w", err)
	}
	return nil
}

// DecodeValuate reads the payload of a valuation task.
func DecodeValuate(task *asynq.Task) (ValuatePayload, error) {
	var payload ValuatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.UploadID == "" {
		return payload, errors.New("decode payload: missing upload id")
	}
	return payload, nil
}
