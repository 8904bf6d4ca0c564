package automation

import "github.com/dukex/operion-automation/pkg/models"

const (
	DecomposeRuleID        = "auto-decompose-complex-tasks"
	EscalateRuleID         = "auto-escalate-overdue-tasks"
	CompletionRuleID       = "run-task-completion-workflow"
	CompletionWorkflowID   = "task-completion"
	systemAuthor           = "system"
	defaultWorkflowVersion = "1.0.0"
)

// DefaultRules returns the rules installed on first start.
func DefaultRules() []models.AutomationRule {
	return []models.AutomationRule{
		{
			ID:          DecomposeRuleID,
			Name:        "Auto-decompose very complex tasks",
			Description: "Break very complex tasks into subtasks as soon as they are created",
			Enabled:     true,
			Priority:    80,
			Trigger:     models.Trigger{Type: models.EventTaskCreated},
			Conditions: []models.Condition{
				{
					Type:     models.ConditionTaskProperty,
					Field:    "complexity",
					Operator: models.OperatorEquals,
					Value:    "very_complex",
				},
			},
			Actions: []models.Action{
				{
					Type: "task_operation",
					Config: map[string]any{
						"operation": "decompose",
						"options":   map[string]any{"strategy": "auto"},
					},
				},
			},
			Metadata: models.Metadata{Category: "task_management", Author: systemAuthor, Tags: []string{"decomposition"}},
		},
		{
			ID:          EscalateRuleID,
			Name:        "Auto-escalate overdue tasks",
			Description: "Raise overdue tasks to urgent priority and notify",
			Enabled:     true,
			Priority:    90,
			Trigger:     models.Trigger{Type: models.EventTaskUpdated},
			Conditions: []models.Condition{
				{
					Type:     models.ConditionTaskProperty,
					Field:    "is_overdue",
					Operator: models.OperatorEquals,
					Value:    true,
				},
			},
			Actions: []models.Action{
				{
					Type:   "change_priority",
					Config: map[string]any{"priority": "urgent", "reason": "Task is overdue"},
				},
				{
					Type: "send_notification",
					Config: map[string]any{
						"type":     "task_escalated",
						"message":  "Task {{ .task_id }} is overdue and was escalated to urgent priority",
						"priority": "high",
					},
				},
			},
			Metadata: models.Metadata{Category: "priority", Author: systemAuthor, Tags: []string{"overdue", "escalation"}},
		},
		{
			ID:          CompletionRuleID,
			Name:        "Run task completion workflow",
			Description: "Start the task completion workflow when a task completes",
			Enabled:     true,
			Priority:    50,
			Trigger:     models.Trigger{Type: models.EventTaskCompleted},
			Actions: []models.Action{
				{
					Type:   "execute_workflow",
					Config: map[string]any{"workflow_id": CompletionWorkflowID},
				},
			},
			Metadata: models.Metadata{Category: "workflow", Author: systemAuthor},
		},
	}
}

// DefaultWorkflows returns the workflows installed on first start.
func DefaultWorkflows() []models.Workflow {
	return []models.Workflow{
		{
			ID:          CompletionWorkflowID,
			Name:        "Task completion",
			Description: "Close out a completed task and feed the learning cycle",
			Version:     defaultWorkflowVersion,
			Enabled:     true,
			Steps: []models.WorkflowStep{
				{
					ID:        "update-progress",
					Name:      "Set progress to 100%",
					Type:      "task_operation",
					Config:    map[string]any{"operation": "update", "changes": map[string]any{"progress": 100}},
					OnSuccess: "learning-cycle",
				},
				{
					ID:        "learning-cycle",
					Name:      "Run learning cycle",
					Type:      "run_analysis",
					Config:    map[string]any{"analysis_type": "learning_cycle"},
					OnSuccess: "notify-completion",
				},
				{
					ID:   "notify-completion",
					Name: "Notify completion",
					Type: "send_notification",
					Config: map[string]any{
						"type":    "task_completed",
						"message": "Task {{ .task_id }} completed",
					},
				},
			},
			Metadata: models.Metadata{Category: "task_management", Author: systemAuthor},
		},
	}
}
