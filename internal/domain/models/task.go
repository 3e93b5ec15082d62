package models

import "time"

// TaskType enumerates the operational tasks derived from block state.
type TaskType string

const (
	TaskPlanting              TaskType = "planting"
	TaskHarvestReadinessCheck TaskType = "harvest_readiness_check"
	TaskDailyHarvest          TaskType = "daily_harvest"
	TaskCleaning              TaskType = "cleaning"
)

// TaskStatus tracks whether a task still needs attention.
type TaskStatus string

const (
	TaskOpen      TaskStatus = "open"
	TaskDone      TaskStatus = "done"
	TaskCancelled TaskStatus = "cancelled"
)

// Recurrence describes how often a task repeats.
type Recurrence string

const (
	RecurrenceNone  Recurrence = "none"
	RecurrenceDaily Recurrence = "daily"
)

// PendingTask is an operational to-do generated for a block.
type PendingTask struct {
	ID         string     `bson:"_id" json:"id"`
	UnitID     string     `bson:"unit_id" json:"unit_id"`
	SiteID     string     `bson:"site_id" json:"site_id"`
	Type       TaskType   `bson:"type" json:"type"`
	Status     TaskStatus `bson:"status" json:"status"`
	DueDate    *time.Time `bson:"due_date,omitempty" json:"due_date,omitempty"`
	Recurrence Recurrence `bson:"recurrence" json:"recurrence"`
	Cycle      int        `bson:"cycle" json:"cycle"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
}
