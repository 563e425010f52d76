package logic

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// TaskFunc handles an accepted transition.
type TaskFunc func(t Transition) error

// Task pairs a direction filter with a callback.
type Task struct {
	Name      string
	Direction Direction
	Run       TaskFunc
}

// Registry is an append-only list of tasks run on every accepted transition.
type Registry struct {
	mu    sync.RWMutex
	tasks []Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a task. Tasks run in registration order.
func (r *Registry) Add(task Task) {
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Dispatch runs every task whose direction matches t, in order. Errors and
// panics are logged per task and never stop later tasks. It returns the number
// of tasks that ran.
func (r *Registry) Dispatch(t Transition) int {
	r.mu.RLock()
	tasks := make([]Task, len(r.tasks))
	copy(tasks, r.tasks)
	r.mu.RUnlock()

	ran := 0
	for _, task := range tasks {
		if !task.Direction.Matches(t.Level) {
			continue
		}
		ran++
		if err := runTask(task, t); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"task":   task.Name,
				"level":  t.Level.String(),
				"source": t.Source,
			}).Error("task failed")
		}
	}
	return ran
}

func runTask(task Task, t Transition) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if task.Run == nil {
		return nil
	}
	return task.Run(t)
}
