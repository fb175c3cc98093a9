package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskOutreachCycle = "outreach.cycle"

// Cycle trigger sources.
const (
	TriggerPeriodic = "periodic"
	TriggerAPI      = "api"
	TriggerCLI      = "cli"
)

type CyclePayload struct {
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requestedAt"`
}

func NewCycleTask(payload CyclePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutreachCycle, data), nil
}

func ParseCyclePayload(task *asynq.Task) (CyclePayload, error) {
	var payload CyclePayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CyclePayload{}, err
	}
	return payload, nil
}
