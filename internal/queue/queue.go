// Package queue carries transcription tasks from the API to the workers.
// Delivery is at-least-once: a task is only removed once acknowledged.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task asks for one interview to be transcribed.
type Task struct {
	ID            string    `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	InterviewID   uuid.UUID `json:"interview_id"`
	AudioLocation string    `json:"audio_location,omitempty"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// NewTask stamps a task with a fresh id.
func NewTask(userID, interviewID uuid.UUID, audio string) Task {
	return Task{
		ID:            uuid.NewString(),
		UserID:        userID,
		InterviewID:   interviewID,
		AudioLocation: audio,
		EnqueuedAt:    time.Now().UTC(),
	}
}

// Delivery is a dequeued task awaiting acknowledgement.
type Delivery struct {
	Task Task
	raw  string
}

type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	// Dequeue waits a short while for a task and returns nil, nil when none
	// arrived, so callers can check for shutdown between polls.
	Dequeue(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// Requeue moves deliveries left unacknowledged by a previous process back
	// onto the queue and returns how many were moved.
	Requeue(ctx context.Context) (int, error)
	Close() error
}

func encode(t Task) (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}
	return string(raw), nil
}

func decode(raw string) (*Delivery, error) {
	var t Task
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &Delivery{Task: t, raw: raw}, nil
}
