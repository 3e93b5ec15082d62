package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/blockfarm/internal/domain/models"
	"github.com/mamadbah2/blockfarm/internal/repository"
)

// TaskRepository stores generated tasks in the tasks collection.
type TaskRepository struct {
	coll *mongo.Collection
}

var _ repository.TaskRepository = (*TaskRepository)(nil)

// ListOpen returns the unit's open tasks by creation time.
func (r *TaskRepository) ListOpen(ctx context.Context, unitID string) ([]models.PendingTask, error) {
	filter := bson.M{"unit_id": unitID, "status": models.TaskOpen}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, unavailable("find tasks", err)
	}
	defer cursor.Close(ctx)

	var tasks []models.PendingTask
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, unavailable("decode tasks", err)
	}
	return tasks, nil
}

// CreateIfAbsent upserts on unit, type and open status so a repeated call
// leaves the existing task untouched.
func (r *TaskRepository) CreateIfAbsent(ctx context.Context, task models.PendingTask) (bool, error) {
	task.Status = models.TaskOpen
	filter := taskSlotFilter(task)
	update := bson.M{"$setOnInsert": task}

	res, err := r.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// Two concurrent upserts can both miss the filter; the partial
		// unique index rejects the second.
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, unavailable("upsert task", err)
	}
	return res.UpsertedCount == 1, nil
}

// Cancel marks a task as cancelled.
func (r *TaskRepository) Cancel(ctx context.Context, taskID string) error {
	update := bson.M{"$set": bson.M{"status": models.TaskCancelled}}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": taskID}, update)
	if err != nil {
		return unavailable("cancel task", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("task %s: %w", taskID, models.ErrNotFound)
	}
	return nil
}

func taskSlotFilter(task models.PendingTask) bson.M {
	return bson.M{
		"unit_id": task.UnitID,
		"type":    task.Type,
		"status":  models.TaskOpen,
	}
}
