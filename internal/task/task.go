// Package task runs apps in the background and keeps their results in an
// in-memory ledger.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/soofff/boofi/internal/apps"
	"github.com/soofff/boofi/internal/system"
)

type Status string

const (
	StatusCreated  Status = "created"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Task is a snapshot of one background app run. Output is only set once
// finished, Error only once failed.
type Task struct {
	ID         uint64          `json:"id"`
	AppName    string          `json:"app_name"`
	Status     Status          `json:"status"`
	Input      json.RawMessage `json:"app_input"`
	Output     json.RawMessage `json:"app_output,omitempty"`
	Error      string          `json:"app_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// NotFoundError is returned for an unknown task id.
type NotFoundError struct {
	ID uint64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("task %d not found", e.ID)
}

// Recorder receives every task once it reached a terminal status.
type Recorder interface {
	Record(ctx context.Context, t Task) error
}

// Controller allocates ids and tracks task state. Ids start at 1 and are
// never reused. The lock is held only for bookkeeping, never while an app
// runs.
type Controller struct {
	recorder Recorder
	now      func() time.Time

	mu     sync.RWMutex
	lastID uint64
	order  []uint64
	tasks  map[uint64]*Task
}

// NewController returns an empty ledger. recorder may be nil.
func NewController(recorder Recorder) *Controller {
	return &Controller{
		recorder: recorder,
		now:      time.Now,
		tasks:    map[uint64]*Task{},
	}
}

// New records a task for app and starts it. Syntactically invalid input is
// rejected before an id is allocated. The returned snapshot has status
// created; progress is observed through Get.
func (c *Controller) New(ctx context.Context, app apps.App, input json.RawMessage, sys *system.System) (Task, error) {
	if len(input) == 0 {
		input = json.RawMessage("null")
	}
	if !json.Valid(input) {
		return Task{}, apps.DeserializeError{Reason: "input is not valid json"}
	}
	input = append(json.RawMessage(nil), input...)

	c.mu.Lock()
	c.lastID++
	t := &Task{
		ID:        c.lastID,
		AppName:   app.Name(),
		Status:    StatusCreated,
		Input:     input,
		CreatedAt: c.now(),
	}
	c.tasks[t.ID] = t
	c.order = append(c.order, t.ID)
	snapshot := *t
	c.mu.Unlock()

	log.Printf("[Task] %d created for app %s", snapshot.ID, snapshot.AppName)
	go c.run(context.WithoutCancel(ctx), t.ID, app, input, sys)
	return snapshot, nil
}

func (c *Controller) run(ctx context.Context, id uint64, app apps.App, input json.RawMessage, sys *system.System) {
	c.update(id, func(t *Task) { t.Status = StatusRunning })

	output, err := c.execute(ctx, app, input, sys)

	final := c.update(id, func(t *Task) {
		now := c.now()
		t.FinishedAt = &now
		if err != nil {
			t.Status = StatusFailed
			t.Error = err.Error()
			return
		}
		t.Status = StatusFinished
		t.Output = output
	})
	if err != nil {
		log.Printf("[Task] %d failed: %v", id, err)
	} else {
		log.Printf("[Task] %d finished", id)
	}

	if c.recorder != nil {
		if err := c.recorder.Record(ctx, final); err != nil {
			log.Printf("[Task] %d: record failed: %v", id, err)
		}
	}
}

func (c *Controller) execute(ctx context.Context, app apps.App, input json.RawMessage, sys *system.System) (output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Task] app %s panicked: %v\n%s", app.Name(), r, debug.Stack())
			err = fmt.Errorf("app %s panicked: %v", app.Name(), r)
		}
	}()
	return app.Run(ctx, input, sys)
}

func (c *Controller) update(id uint64, mutate func(*Task)) Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[id]
	mutate(t)
	return *t
}

// Get returns a snapshot of task id.
func (c *Controller) Get(id uint64) (Task, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tasks[id]
	if !ok {
		return Task{}, NotFoundError{ID: id}
	}
	return *t, nil
}

// List returns snapshots of every task in id order.
func (c *Controller) List() []Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Task, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.tasks[id])
	}
	return out
}
