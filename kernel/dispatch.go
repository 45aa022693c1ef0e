package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentcore/agentcore/agentmodel"
	"github.com/agentcore/agentcore/agenttools"
	"github.com/agentcore/agentcore/trace"
)

// dispatchToolCalls executes every tool call the model requested, in order,
// applying the tool-call cap, plan-mode interception, the confirmation
// gate, and the input-class retry-hint protocol from spec §7. Grounded on
// the teacher's workflow_turn.go handleToolTurn.
func (k *Kernel) dispatchToolCalls(ctx context.Context, calls []agentmodel.ToolCall, dl *IterationDeadlines) []agentmodel.Part {
	parts := make([]agentmodel.Part, 0, len(calls))
	for _, tc := range calls {
		if k.cfg.MaxToolCalls > 0 && k.toolCallsUsed >= k.cfg.MaxToolCalls {
			parts = append(parts, agentmodel.ToolResultPart{ToolUseID: tc.ID, Content: "tool call budget exhausted for this session", IsError: true})
			continue
		}
		k.toolCallsUsed++
		parts = append(parts, k.executeOne(ctx, tc, dl))
	}
	return parts
}

func (k *Kernel) executeOne(ctx context.Context, tc agentmodel.ToolCall, dl *IterationDeadlines) agentmodel.Part {
	tool, ok := k.tools.Lookup(tc.Name)
	if !ok {
		return k.inputFailurePart(ctx, tc, RetryUnknownTool, nil, fmt.Sprintf("no tool named %q is registered", tc.Name))
	}

	argsJSON, err := json.Marshal(tc.Args)
	if err != nil {
		return k.inputFailurePart(ctx, tc, RetryInvalidArgs, nil, err.Error())
	}
	if err := tool.Validate(argsJSON); err != nil {
		return k.inputFailurePart(ctx, tc, RetryInvalidArgs, nil, err.Error())
	}

	if k.confirm != nil && k.cfg.ConfirmBeforeExecute && tool.Danger != agenttools.DangerSafe {
		if !k.confirm(tc.Name, tc.Args) {
			_ = k.trace.RecordDecision(ctx, trace.DecisionPayload{Kind: "confirm", Choice: "denied", Reason: tc.Name})
			return agentmodel.ToolResultPart{ToolUseID: tc.ID, Content: "denied by operator", IsError: true}
		}
	}

	if k.pendingPlan != nil && tool.Danger != agenttools.DangerSafe {
		change, err := k.pendingPlan.Intercept(pathFromArgs(tc.Args), tc.Name, string(argsJSON))
		if err == nil {
			_ = k.trace.RecordPlanEvolution(ctx, trace.PlanEvolutionPayload{})
			return agentmodel.ToolResultPart{ToolUseID: tc.ID, Content: fmt.Sprintf("queued as proposed change %s, pending plan approval", change.ID)}
		}
	}

	before := time.Now()
	ft := k.journal.ForToolCall(tc.ID)
	k.trace.BeginToolCall(ctx, tc.ID, tc.Name, tc.Args)
	execCtx := agenttools.ExecContext{
		Context:       ctx,
		Cancel:        k.cancel,
		SessionID:     k.sessionID,
		TurnNumber:    k.turnNumber,
		ToolCallID:    tc.ID,
		TraceRecorder: k.trace,
		FileTracker:   ft,
	}
	result, execErr := tool.Execute(execCtx, argsJSON)
	if execErr != nil && result.Err == nil {
		result.Err = execErr
		result.Success = false
	}
	dl.Pause(time.Since(before))

	if settleErr := k.trace.SettleToolCall(ctx, tc.ID, result); settleErr != nil {
		k.tel.Logger.Warn(ctx, "kernel: settle tool call failed", "tool", tc.Name, "err", settleErr)
	}

	k.budget.RecordToolCall(tc.Name, argsMap(tc.Args), pathFromArgs(tc.Args), fmt.Sprint(result.Output))
	if report := k.budget.DoomLoop().Check(); report.Detected {
		_ = k.trace.RecordDecision(ctx, trace.DecisionPayload{Kind: "doomloop", Choice: string(report.Kind), Reason: report.Suggestion})
	}

	if result.Err == nil {
		return agentmodel.ToolResultPart{ToolUseID: tc.ID, Content: result.Output}
	}
	if agenttools.IsClass(result.Err, agenttools.ClassInput) {
		return k.inputFailurePart(ctx, tc, RetryInvalidArgs, nil, result.Err.Error())
	}
	return agentmodel.ToolResultPart{ToolUseID: tc.ID, Content: result.Err.Error(), IsError: true}
}

// inputFailurePart records a ClassInput-style tool failure and decides,
// per-tool-name, whether to attach a RetryHint (inviting the model to
// correct itself on its next turn) or surface the failure as terminal once
// MaxInputRetries is exceeded (spec §7).
func (k *Kernel) inputFailurePart(ctx context.Context, tc agentmodel.ToolCall, reason RetryReason, missing []string, msg string) agentmodel.Part {
	k.retryCounts[tc.Name]++
	if k.retryCounts[tc.Name] > k.cfg.MaxInputRetries {
		_ = k.trace.RecordError(ctx, trace.ErrorPayload{Class: string(agenttools.ClassInput), Message: msg})
		return agentmodel.ToolResultPart{ToolUseID: tc.ID, Content: msg, IsError: true}
	}
	hint := RetryHint{Reason: reason, MissingFields: missing, Suggestion: msg}
	return agentmodel.ToolResultPart{
		ToolUseID: tc.ID,
		Content:   map[string]any{"error": msg, "retryHint": hint},
		IsError:   true,
	}
}
