package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TaskAwaitingHumanReminder = "support:awaiting_human_reminder"

type ReminderPayload struct {
	UserKey  string `json:"userKey"`
	TicketID string `json:"ticketId"`
}

func NewReminderTask(payload ReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAwaitingHumanReminder, data), nil
}

func ParseReminderPayload(task *asynq.Task) (ReminderPayload, error) {
	var payload ReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReminderPayload{}, err
	}
	if payload.UserKey == "" || payload.TicketID == "" {
		return ReminderPayload{}, fmt.Errorf("reminder payload missing userKey or ticketId")
	}
	return payload, nil
}
