package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	JobIDWebhookDeliver = "hooks.webhook.deliver"

	jobParamDeliveryID = "delivery_id"
	jobParamAttempt    = "attempt"
	jobParamDueAt      = "due_at"
)

// NewDeliveryJobMessage builds the queue message for one attempt of a
// delivery. The idempotency key changes per attempt so a retry is not
// deduplicated against the attempt that scheduled it.
func NewDeliveryJobMessage(deliveryID string, attempt int) *JobExecutionMessage {
	deliveryID = strings.TrimSpace(deliveryID)
	return &JobExecutionMessage{
		JobID:      JobIDWebhookDeliver,
		ScriptPath: JobIDWebhookDeliver,
		Parameters: map[string]any{
			jobParamDeliveryID: deliveryID,
			jobParamAttempt:    attempt,
		},
		IdempotencyKey: fmt.Sprintf("%s:%d", deliveryID, attempt),
	}
}

// NewScheduledDeliveryJobMessage builds the message for the delivery's next
// attempt. The scheduled time is part of the idempotency key, so a delivery
// reset by a manual retry gets a fresh job even when the queue still remembers
// the job that ran before the reset.
func NewScheduledDeliveryJobMessage(delivery WebhookDelivery) *JobExecutionMessage {
	msg := NewDeliveryJobMessage(delivery.ID, delivery.Attempts)
	if delivery.NextAttemptAt == nil || delivery.NextAttemptAt.IsZero() {
		return msg
	}
	dueAt := delivery.NextAttemptAt.UTC().UnixMilli()
	msg.Parameters[jobParamDueAt] = dueAt
	msg.IdempotencyKey = fmt.Sprintf("%s:%d", msg.IdempotencyKey, dueAt)
	return msg
}

// DueAtFromMessage returns the scheduled time carried by the message, or the
// zero time when it has none.
func DueAtFromMessage(msg *JobExecutionMessage) time.Time {
	if msg == nil {
		return time.Time{}
	}
	millis, ok := intParam(msg.Parameters[jobParamDueAt])
	if !ok || millis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(millis)).UTC()
}

func DeliveryIDFromMessage(msg *JobExecutionMessage) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("core: job message is required")
	}
	if job := strings.TrimSpace(msg.JobID); job != "" && job != JobIDWebhookDeliver {
		return "", fmt.Errorf("core: unexpected job id %q", job)
	}
	raw, ok := msg.Parameters[jobParamDeliveryID]
	if !ok {
		return "", fmt.Errorf("core: job parameter %s is required", jobParamDeliveryID)
	}
	id := strings.TrimSpace(fmt.Sprint(raw))
	if id == "" || id == "<nil>" {
		return "", fmt.Errorf("core: job parameter %s is required", jobParamDeliveryID)
	}
	return id, nil
}

// AttemptFromMessage reads the attempt parameter; messages decoded from JSON
// carry it as float64 or string.
func AttemptFromMessage(msg *JobExecutionMessage) int {
	if msg == nil {
		return 0
	}
	value, _ := intParam(msg.Parameters[jobParamAttempt])
	return value
}

func intParam(raw any) (int, bool) {
	switch value := raw.(type) {
	case int:
		return value, true
	case int64:
		return int(value), true
	case float64:
		return int(value), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
