// Package tasks derives operational to-dos from block state and keeps the
// stored task list in step with it.
package tasks

import (
	"time"

	"github.com/mamadbah2/blockfarm/internal/domain/lifecycle"
	"github.com/mamadbah2/blockfarm/internal/domain/models"
)

type taskRule struct {
	taskType   models.TaskType
	recurrence models.Recurrence
}

var rules = map[models.State]taskRule{
	models.StatePlanned:    {models.TaskPlanting, models.RecurrenceNone},
	models.StateGrowing:    {models.TaskHarvestReadinessCheck, models.RecurrenceNone},
	models.StateFruiting:   {models.TaskHarvestReadinessCheck, models.RecurrenceNone},
	models.StateHarvesting: {models.TaskDailyHarvest, models.RecurrenceDaily},
	models.StateCleaning:   {models.TaskCleaning, models.RecurrenceNone},
}

// Generate returns the tasks the block's state calls for, minus any type that
// already has an open task. Calling it again with its own output as open
// tasks yields nothing. Returned tasks carry no ID.
func Generate(block *models.Block, open []models.PendingTask, now time.Time) []models.PendingTask {
	if block == nil {
		return nil
	}
	rule, ok := rules[block.State]
	if !ok {
		return nil
	}
	for _, task := range open {
		if task.Status == models.TaskOpen && task.Type == rule.taskType {
			return nil
		}
	}

	task := models.PendingTask{
		UnitID:     block.ID,
		SiteID:     block.SiteID,
		Type:       rule.taskType,
		Status:     models.TaskOpen,
		Recurrence: rule.recurrence,
		Cycle:      block.Cycle,
		CreatedAt:  now,
	}
	if next, ok := lifecycle.Successor(block.State); ok {
		if due, ok := block.ExpectedDate(next); ok {
			task.DueDate = &due
		}
	}
	return []models.PendingTask{task}
}

// Stale returns the open tasks that no longer apply: their type does not
// match the current state, or they belong to an earlier cycle. A block in
// alert keeps its tasks until the alert is resolved.
func Stale(block *models.Block, open []models.PendingTask) []models.PendingTask {
	if block == nil || block.State == models.StateAlert {
		return nil
	}
	rule, hasRule := rules[block.State]

	var stale []models.PendingTask
	for _, task := range open {
		if task.Status != models.TaskOpen {
			continue
		}
		if !hasRule || task.Type != rule.taskType || task.Cycle != block.Cycle {
			stale = append(stale, task)
		}
	}
	return stale
}
