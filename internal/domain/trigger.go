package domain

import (
	"encoding/json"
	"strings"
)

// ActionKind is the closed set of action variants a trigger or cron task
// can execute.
type ActionKind string

const (
	ActionCommand ActionKind = "command"
	ActionHTTP    ActionKind = "http"
	ActionAgent   ActionKind = "agent"
)

// Action is one step of a trigger. Exactly one variant is meaningful per
// kind: Command for command actions, URL/Method/Headers/Vars for http
// actions, Job for agent actions.
type Action struct {
	Kind    ActionKind        `json:"type"`
	Command string            `json:"command,omitempty"`
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Vars    map[string]string `json:"vars,omitempty"`
	Job     string            `json:"job,omitempty"`
}

// UnmarshalJSON defaults an untagged action to the agent kind.
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Action(p)
	if a.Kind == "" {
		a.Kind = ActionAgent
	}
	return nil
}

// Trigger binds a watched webhook path to a sequence of actions.
type Trigger struct {
	Name      string   `json:"name"`
	WatchPath string   `json:"watch_path"`
	Enabled   bool     `json:"enabled"`
	Actions   []Action `json:"actions"`
}

// UnmarshalJSON defaults Enabled to true when the field is omitted.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	type wire struct {
		Name      string   `json:"name"`
		WatchPath string   `json:"watch_path"`
		Enabled   *bool    `json:"enabled"`
		Actions   []Action `json:"actions"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.Name = w.Name
	t.WatchPath = w.WatchPath
	t.Enabled = w.Enabled == nil || *w.Enabled
	t.Actions = w.Actions
	return nil
}

// RequestContext is the captured shape of an inbound trigger request,
// exposed to action templates as the body/query/headers sources.
type RequestContext struct {
	Body    any
	Query   map[string]string
	Headers map[string]string
}

// Source returns the named template source and whether it exists.
// Header lookup is case-insensitive.
func (rc RequestContext) Source(name string) (any, bool) {
	switch name {
	case "body":
		return rc.Body, rc.Body != nil
	case "query":
		if rc.Query == nil {
			return nil, false
		}
		return rc.Query, true
	case "headers":
		if rc.Headers == nil {
			return nil, false
		}
		return rc.Headers, true
	}
	return nil, false
}

// Field resolves a single field of a named source. Body fields only
// resolve when the body decoded to an object.
func (rc RequestContext) Field(source, field string) (any, bool) {
	switch source {
	case "body":
		obj, ok := rc.Body.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := obj[field]
		return v, ok
	case "query":
		v, ok := rc.Query[field]
		return v, ok
	case "headers":
		for k, v := range rc.Headers {
			if strings.EqualFold(k, field) {
				return v, true
			}
		}
	}
	return nil, false
}
