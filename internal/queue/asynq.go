// Package queue moves message-created notifications through asynq so a slow
// or absent subscriber never holds up send_message.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/tcgvault/messaging/internal/messaging"
)

// TypeMessageCreated is the asynq task type for message notifications.
const TypeMessageCreated = "message:created"

const defaultMaxRetry = 3

// Notifier implements messaging.Notifier by enqueueing a task.
type Notifier struct {
	client *asynq.Client
	queue  string
}

var _ messaging.Notifier = (*Notifier)(nil)

// NewNotifier creates a Notifier enqueueing on queueName.
func NewNotifier(redisURL, queueName string) (*Notifier, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &Notifier{client: asynq.NewClient(opt), queue: queueName}, nil
}

// NewTask encodes ev as an asynq task.
func NewTask(ev messaging.Event) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMessageCreated, payload), nil
}

func (n *Notifier) MessageCreated(ctx context.Context, ev messaging.Event) error {
	task, err := NewTask(ev)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.MaxRetry(defaultMaxRetry)}
	if n.queue != "" {
		opts = append(opts, asynq.Queue(n.queue))
	}
	_, err = n.client.EnqueueContext(ctx, task, opts...)
	return err
}

// Close releases the Redis connection.
func (n *Notifier) Close() error {
	return n.client.Close()
}

// HandleMessageCreated returns the task handler that forwards decoded events
// to target. Malformed payloads are skipped rather than retried.
func HandleMessageCreated(target messaging.Notifier) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var ev messaging.Event
		if err := json.Unmarshal(t.Payload(), &ev); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
		}
		if ev.RecipientID == "" {
			return fmt.Errorf("%s without recipient: %w", t.Type(), asynq.SkipRetry)
		}
		return target.MessageCreated(ctx, ev)
	}
}

// Worker consumes notification tasks.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewWorker builds a Worker delivering to target.
func NewWorker(redisURL, queueName string, concurrency int, target messaging.Notifier) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	if queueName == "" {
		queueName = "default"
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Printf("queue: task %s failed: %v", task.Type(), err)
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeMessageCreated, HandleMessageCreated(target))
	return &Worker{server: srv, mux: mux}, nil
}

// Start begins processing in the background.
func (w *Worker) Start() error {
	if w == nil || w.server == nil {
		return errors.New("queue: worker not initialised")
	}
	return w.server.Start(w.mux)
}

// Shutdown waits for in-flight tasks and stops the worker.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}
