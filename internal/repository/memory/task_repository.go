package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/repository"
)

// TaskRepository stores tasks in memory.
type TaskRepository struct {
	mu    sync.Mutex
	tasks map[string]models.PendingTask
}

// NewTaskRepository creates an empty task repository.
func NewTaskRepository() *TaskRepository {
	return &TaskRepository{tasks: map[string]models.PendingTask{}}
}

var _ repository.TaskRepository = (*TaskRepository)(nil)

// ListOpen returns the unit's open tasks ordered by creation time.
func (r *TaskRepository) ListOpen(_ context.Context, unitID string) ([]models.PendingTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.PendingTask
	for _, task := range r.tasks {
		if task.UnitID == unitID && task.Status == models.TaskOpen {
			out = append(out, task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Type < out[j].Type
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CreateIfAbsent inserts task unless an open task of the same type exists for the unit.
func (r *TaskRepository) CreateIfAbsent(_ context.Context, task models.PendingTask) (bool, error) {
	if task.ID == "" {
		return false, fmt.Errorf("task id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.tasks {
		if existing.UnitID == task.UnitID && existing.Type == task.Type && existing.Status == models.TaskOpen {
			return false, nil
		}
	}
	task.Status = models.TaskOpen
	r.tasks[task.ID] = task
	return true, nil
}

// Cancel marks an open task as cancelled.
func (r *TaskRepository) Cancel(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	task.Status = models.TaskCancelled
	r.tasks[taskID] = task
	return nil
}
