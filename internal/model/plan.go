package model

import "time"

// PlanStatus represents the lifecycle status of an execution plan.
type PlanStatus string

const (
	PlanStatusCreated   PlanStatus = "created"
	PlanStatusExecuting PlanStatus = "executing"
	PlanStatusFailed    PlanStatus = "failed"
	PlanStatusCompleted PlanStatus = "completed"
)

// Task is one step of an execution plan, bound to the session that will
// carry it out.
type Task struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Prompt  string `json:"prompt"`
	AgentID string `json:"agentId"`
}

// ExecutionPlan is a decomposed multi-task plan produced by the planner.
// The plan's id correlates to the planId of the create_plan request that
// produced it. The server only tracks status; task execution itself is
// owned by the connected client.
type ExecutionPlan struct {
	ID        string     `json:"id"`
	Tasks     []Task     `json:"tasks"`
	Status    PlanStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}
