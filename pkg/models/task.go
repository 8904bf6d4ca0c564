package models

import "time"

// Task is the view of an external task carried by lifecycle notifications.
type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	Complexity  string         `json:"complexity,omitempty"`
	Progress    int            `json:"progress"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// Overdue reports whether the task is past its due date and not done.
func (t Task) Overdue(now time.Time) bool {
	return t.DueDate != nil && now.After(*t.DueDate) && t.Status != "done" && t.Status != "completed"
}

// AsMap flattens the task into an event payload. Extra fields are merged last.
func (t Task) AsMap() map[string]any {
	data := map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"status":      t.Status,
		"priority":    t.Priority,
		"complexity":  t.Complexity,
		"progress":    t.Progress,
		"is_overdue":  t.Overdue(time.Now().UTC()),
	}

	if t.DueDate != nil {
		data["due_date"] = t.DueDate.UTC().Format(time.RFC3339)
	}

	if len(t.Tags) > 0 {
		tags := make([]any, len(t.Tags))
		for i, tag := range t.Tags {
			tags[i] = tag
		}

		data["tags"] = tags
	}

	for k, v := range t.Fields {
		data[k] = v
	}

	return data
}

// LearningInsight is emitted by the external learning subsystem.
type LearningInsight struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Confidence      float64        `json:"confidence"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Data            map[string]any `json:"data,omitempty"`
}

// AsMap flattens the insight into an event payload.
func (i LearningInsight) AsMap() map[string]any {
	recommendations := make([]any, len(i.Recommendations))
	for idx, r := range i.Recommendations {
		recommendations[idx] = r
	}

	return map[string]any{
		"id":              i.ID,
		"title":           i.Title,
		"description":     i.Description,
		"confidence":      i.Confidence,
		"recommendations": recommendations,
		"data":            i.Data,
	}
}

// PriorityChange describes a priority transition emitted by the priority subsystem.
type PriorityChange struct {
	OldPriority string `json:"old_priority"`
	NewPriority string `json:"new_priority"`
	Reason      string `json:"reason,omitempty"`
}

// Notification is a delivery request handed to the notification sink.
type Notification struct {
	Type       string         `json:"type"`
	Recipients []string       `json:"recipients"`
	Message    string         `json:"message"`
	Priority   string         `json:"priority"`
	Data       map[string]any `json:"data,omitempty"`
}
