package decompose_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/agentcore/agentmodel"
	"github.com/agentcore/agentcore/decompose"
	"github.com/agentcore/agentcore/telemetry"
)

type fakeProvider struct {
	responses []string
	errs      []error
	call      int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, messages []agentmodel.Message, opts agentmodel.ChatOptions) (agentmodel.ChatResponse, error) {
	i := f.call
	f.call++
	if i < len(f.errs) && f.errs[i] != nil {
		return agentmodel.ChatResponse{}, f.errs[i]
	}
	text := ""
	if i < len(f.responses) {
		text = f.responses[i]
	}
	return agentmodel.ChatResponse{
		Content:    []agentmodel.Part{agentmodel.TextPart{Text: text}},
		StopReason: agentmodel.StopEndTurn,
	}, nil
}

func (f *fakeProvider) ChatWithTools(ctx context.Context, messages []agentmodel.Message, tools []agentmodel.ToolDescriptor, opts agentmodel.ChatOptions) (agentmodel.ChatWithToolsResponse, error) {
	return agentmodel.ChatWithToolsResponse{}, errors.New("not implemented")
}

func TestDecomposeParsesWellFormedJSON(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{
		"subtasks": [
			{"id": "t1", "description": "Research existing auth flows", "type": "research", "complexity": 3},
			{"id": "t2", "description": "Implement new login endpoint", "type": "implement", "complexity": 6, "dependencies": ["t1"], "relevantFiles": ["auth.go"]},
			{"id": "t3", "description": "Write tests for login endpoint", "type": "test", "complexity": 4, "dependencies": ["t2"]}
		]
	}`}}
	d := decompose.New(provider, "claude", nil, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "add login support")
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Len(t, result.Subtasks, 3)
	assert.Equal(t, []string{"t1"}, result.Subtasks[1].Dependencies)
	assert.Equal(t, decompose.StrategySequential, result.Strategy)
	assert.Empty(t, result.Graph.Cycles)
}

func TestDecomposeRepairsMalformedJSONWithTrailingCommas(t *testing.T) {
	provider := &fakeProvider{responses: []string{"```json\n{\n  subtasks: [\n    {'id': 't1', 'description': 'Set up project scaffolding', 'type': 'implement',},\n  ],\n}\n```"}}
	d := decompose.New(provider, "claude", nil, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "scaffold project")
	require.NoError(t, err)
	require.Len(t, result.Subtasks, 1)
	assert.Equal(t, "Set up project scaffolding", result.Subtasks[0].Description)
}

func TestDecomposeExtractsFromTruncatedJSON(t *testing.T) {
	truncated := `{"subtasks": [{"id": "t1", "description": "Add input validation", "type": "implement"}, {"id": "t2", "desc`
	provider := &fakeProvider{responses: []string{truncated}}
	d := decompose.New(provider, "claude", nil, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "validate input")
	require.NoError(t, err)
	require.Len(t, result.Subtasks, 1)
	assert.Equal(t, "Add input validation", result.Subtasks[0].Description)
	assert.Contains(t, result.Reasoning, "layer3_truncation_recovery: succeeded")
}

func TestDecomposeExtractsFromMarkdownChecklist(t *testing.T) {
	md := "Plan:\n- [ ] Write the API handler\n- [ ] Add integration tests\n- [ ] Update documentation\n"
	provider := &fakeProvider{responses: []string{md}}
	d := decompose.New(provider, "claude", nil, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "ship the feature")
	require.NoError(t, err)
	require.Len(t, result.Subtasks, 3)
	assert.Equal(t, "Write the API handler", result.Subtasks[0].Description)
}

func TestDecomposeFallsBackToMegaTaskOnUnparsableText(t *testing.T) {
	provider := &fakeProvider{responses: []string{"I cannot help with that right now, sorry."}}
	d := decompose.New(provider, "claude", nil, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "do the thing")
	require.NoError(t, err)
	require.Len(t, result.Subtasks, 1)
	assert.Contains(t, result.Reasoning, "layer5_mega_task: falling back to a single task")
}

func TestDecomposeRetriesOnceThenHeuristicOnRepeatedError(t *testing.T) {
	provider := &fakeProvider{errs: []error{errors.New("rate limited"), errors.New("rate limited again")}}
	d := decompose.New(provider, "claude", nil, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "build the thing")
	require.NoError(t, err)
	require.Len(t, result.Subtasks, 1)
	assert.Equal(t, 2, provider.call)
}

func TestUnknownSubtaskTypeDefaultsToImplement(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"subtasks":[{"id":"t1","description":"Do something unusual","type":"frobnicate"}]}`}}
	d := decompose.New(provider, "claude", nil, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "frobnicate it")
	require.NoError(t, err)
	require.Len(t, result.Subtasks, 1)
	assert.Equal(t, decompose.TypeImplement, result.Subtasks[0].Type)
}

func TestDependencyResolutionByPositionalIndexAndDescription(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"subtasks":[
		{"id":"a","description":"Design the schema"},
		{"id":"b","description":"Implement the schema migration","dependencies":[1]},
		{"id":"c","description":"Document the schema","dependencies":["design the schema"]}
	]}`}}
	d := decompose.New(provider, "claude", nil, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "schema work")
	require.NoError(t, err)
	require.Len(t, result.Subtasks, 3)
	assert.Equal(t, []string{"a"}, result.Subtasks[1].Dependencies)
	assert.Equal(t, []string{"a"}, result.Subtasks[2].Dependencies)
}

func TestSelfDependencyIsDropped(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"subtasks":[{"id":"a","description":"Self-referential task","dependencies":["a"]}]}`}}
	d := decompose.New(provider, "claude", nil, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, result.Subtasks[0].Dependencies)
}

func TestCycleDetectionMarksInvalid(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"subtasks":[
		{"id":"a","description":"Task A depends on B","dependencies":["b"]},
		{"id":"b","description":"Task B depends on A","dependencies":["a"]}
	]}`}}
	d := decompose.New(provider, "claude", nil, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "circular")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Graph.Cycles)
}

func TestWriteWriteConflictWithoutDirectEdgeIsError(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"subtasks":[
		{"id":"a","description":"Implement feature A here","type":"implement","relevantFiles":["shared.go"]},
		{"id":"b","description":"Implement feature B here","type":"implement","relevantFiles":["shared.go"]}
	]}`}}
	d := decompose.New(provider, "claude", nil, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "two features")
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "write-write", result.Conflicts[0].Kind)
	assert.Equal(t, decompose.SeverityError, result.Conflicts[0].Severity)
}

func TestNoConflictWhenDirectDependencyOrdersThePair(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"subtasks":[
		{"id":"a","description":"Implement base feature here","type":"implement","relevantFiles":["shared.go"]},
		{"id":"b","description":"Implement dependent feature here","type":"implement","relevantFiles":["shared.go"],"dependencies":["a"]}
	]}`}}
	d := decompose.New(provider, "claude", nil, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "two features")
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)
}

func TestMissingRelevantFileIsWarningNotError(t *testing.T) {
	provider := &fakeProvider{responses: []string{`{"subtasks":[
		{"id":"a","description":"Touch a missing file","relevantFiles":["ghost.go"]},
		{"id":"b","description":"Touch a present file","relevantFiles":["real.go"],"dependencies":["a"]}
	]}`}}
	fileCheck := func(path string) bool { return path == "real.go" }
	d := decompose.New(provider, "claude", fileCheck, telemetry.Noop())

	result, err := d.Decompose(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, decompose.SeverityWarning, result.Issues[0].Severity)
}
