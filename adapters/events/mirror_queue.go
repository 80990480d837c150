// Package events carries mirror jobs across the fire-and-forget boundary
// between registration and the on-chain mirror worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/portalis-labs/keygate/ports"
)

// MirrorTopic is the topic mirror jobs travel on.
const MirrorTopic = "keygate.mirror"

// WatermillQueue implements ports.MirrorQueue over a watermill publisher.
// In-process deployments use the gochannel Pub/Sub; multi-instance ones a
// Redis stream publisher.
type WatermillQueue struct {
	publisher message.Publisher
}

// NewWatermillQueue wraps a watermill publisher.
func NewWatermillQueue(publisher message.Publisher) *WatermillQueue {
	return &WatermillQueue{publisher: publisher}
}

// Enqueue publishes one mirror job.
func (q *WatermillQueue) Enqueue(ctx context.Context, job ports.MirrorJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode mirror job: %w", err)
	}

	msg := message.NewMessage(job.CredentialID, payload)
	msg.SetContext(ctx)
	if err := q.publisher.Publish(MirrorTopic, msg); err != nil {
		return fmt.Errorf("publish mirror job: %w", err)
	}
	return nil
}

// DecodeMirrorJob unpacks a job from a queue message.
func DecodeMirrorJob(msg *message.Message) (ports.MirrorJob, error) {
	var job ports.MirrorJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		return ports.MirrorJob{}, fmt.Errorf("decode mirror job: %w", err)
	}
	return job, nil
}
