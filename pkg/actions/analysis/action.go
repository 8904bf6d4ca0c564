// Package analysis implements the run_analysis action.
package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/operion-automation/pkg/actions"
	"github.com/dukex/operion-automation/pkg/protocol"
	"github.com/dukex/operion-automation/pkg/template"
)

type ActionFactory struct {
	runner protocol.AnalysisRunner
}

func NewActionFactory(runner protocol.AnalysisRunner) *ActionFactory {
	return &ActionFactory{runner: runner}
}

func (*ActionFactory) ID() string {
	return "run_analysis"
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	analysisType, err := actions.RequiredString(f.ID(), config, "analysis_type")
	if err != nil {
		return nil, err
	}

	return &Action{
		runner:       f.runner,
		analysisType: analysisType,
		params:       actions.Map(config, "params"),
	}, nil
}

type Action struct {
	runner       protocol.AnalysisRunner
	analysisType string
	params       map[string]any
}

func (a *Action) Execute(ctx context.Context, input protocol.ActionInput, logger *slog.Logger) (map[string]any, error) {
	params, err := template.RenderMap(a.params, input.TemplateData())
	if err != nil {
		return nil, err
	}

	if _, ok := params["task_id"]; !ok {
		if taskID := input.ResolveTaskID(); taskID != "" {
			params["task_id"] = taskID
		}
	}

	result, err := a.runner.RunAnalysis(ctx, a.analysisType, params)
	if err != nil {
		return nil, fmt.Errorf("analysis %s failed: %w", a.analysisType, err)
	}

	logger.InfoContext(ctx, "Analysis completed", "analysis_type", a.analysisType)

	out := map[string]any{"analysis_type": a.analysisType}
	for k, v := range result {
		out[k] = v
	}

	return out, nil
}
