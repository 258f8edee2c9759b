package domain

import "encoding/json"

// CronTask is a scheduled action loaded from the cron rule file.
type CronTask struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Enabled  bool   `json:"enabled"`
	Action   Action `json:"action"`
}

// UnmarshalJSON accepts both the nested form ({"action": {...}}) and the
// flat legacy form where type/command/job live on the task object itself.
// Enabled defaults to true when omitted.
func (t *CronTask) UnmarshalJSON(data []byte) error {
	type wire struct {
		Name     string          `json:"name"`
		Schedule string          `json:"schedule"`
		Enabled  *bool           `json:"enabled"`
		Action   json.RawMessage `json:"action"`

		// Flat form.
		Kind    ActionKind `json:"type"`
		Command string     `json:"command"`
		Job     string     `json:"job"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.Name = w.Name
	t.Schedule = w.Schedule
	t.Enabled = w.Enabled == nil || *w.Enabled
	if len(w.Action) > 0 {
		return json.Unmarshal(w.Action, &t.Action)
	}
	t.Action = Action{Kind: w.Kind, Command: w.Command, Job: w.Job}
	if t.Action.Kind == "" {
		t.Action.Kind = ActionAgent
	}
	return nil
}
