package model

import "time"

type TaskStatus string

const (
	TaskStatusQueued TaskStatus = "queued"
	TaskStatusLeased TaskStatus = "leased"
	TaskStatusDone   TaskStatus = "done"
	TaskStatusDead   TaskStatus = "dead"
)

type Task struct {
	ID         string     `json:"id"`
	JobID      string     `json:"job_id"`
	Status     TaskStatus `json:"status"`
	RunAt      time.Time  `json:"run_at"`
	LeaseUntil *time.Time `json:"lease_until"`
	Deliveries int        `json:"deliveries"`
	LastError  string     `json:"last_error"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
