package incrementalbuild

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/incrementalbuild/sink"
	"github.com/GoCodeAlone/incrementalbuild/workspace"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestBasicContextFirstBuildProcessesEverything(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.txt")
	writeFile(t, input, "hello")
	statePath := filepath.Join(dir, "state.bin")

	ctx, err := NewBasicContext(workspace.NewFilesystem(), statePath, nil, nil)
	require.NoError(t, err)

	meta, err := ctx.RegisterInput(input)
	require.NoError(t, err)

	status, err := meta.Status()
	require.NoError(t, err)
	require.Equal(t, workspace.New, status)

	required, err := ctx.IsProcessingRequired()
	require.NoError(t, err)
	require.True(t, required)

	resource, err := meta.Process()
	require.NoError(t, err)

	out, err := ctx.ProcessOutput(filepath.Join(dir, "out.bin"))
	require.NoError(t, err)
	stream, err := out.NewOutputStream()
	require.NoError(t, err)
	_, err = io.WriteString(stream, "output")
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	require.NoError(t, resource.Associate(out))
	require.NoError(t, ctx.Commit(nil))
}

func TestBasicContextNoOpRebuild(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.txt")
	writeFile(t, input, "hello")
	statePath := filepath.Join(dir, "state.bin")
	outputPath := filepath.Join(dir, "out.bin")

	build := func() *BasicContext {
		ctx, err := NewBasicContext(workspace.NewFilesystem(), statePath, map[string]any{"v": "1"}, nil)
		require.NoError(t, err)
		return ctx
	}

	// First build.
	ctx := build()
	meta, err := ctx.RegisterInput(input)
	require.NoError(t, err)
	res, err := meta.Process()
	require.NoError(t, err)
	out, err := ctx.ProcessOutput(outputPath)
	require.NoError(t, err)
	stream, err := out.NewOutputStream()
	require.NoError(t, err)
	_, _ = io.WriteString(stream, "x")
	require.NoError(t, stream.Close())
	require.NoError(t, res.Associate(out))
	require.NoError(t, ctx.Commit(nil))

	// Second build, identical configuration and unchanged files.
	ctx2 := build()
	escalated, _ := ctx2.Escalated()
	require.False(t, escalated, "expected no escalation on an unchanged rebuild")

	meta2, err := ctx2.RegisterInput(input)
	require.NoError(t, err)
	status, err := meta2.Status()
	require.NoError(t, err)
	require.Equal(t, workspace.Unmodified, status)

	required, err := ctx2.IsProcessingRequired()
	require.NoError(t, err)
	require.False(t, required, "nothing changed, so no processing should be required")
}

func TestBasicContextEscalatesOnConfigChange(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.txt")
	writeFile(t, input, "hello")
	statePath := filepath.Join(dir, "state.bin")

	ctx, err := NewBasicContext(workspace.NewFilesystem(), statePath, map[string]any{"v": "1"}, nil)
	require.NoError(t, err)
	meta, err := ctx.RegisterInput(input)
	require.NoError(t, err)
	_, err = meta.Process()
	require.NoError(t, err)
	require.NoError(t, ctx.Commit(nil))

	ctx2, err := NewBasicContext(workspace.NewFilesystem(), statePath, map[string]any{"v": "2"}, nil)
	require.NoError(t, err)
	escalated, diagnostics := ctx2.Escalated()
	require.True(t, escalated, "expected escalation after a configuration value change")
	require.Equal(t, []string{"CHANGED v"}, diagnostics)

	meta2, err := ctx2.RegisterInput(input)
	require.NoError(t, err)
	status, err := meta2.Status()
	require.NoError(t, err)
	require.Equal(t, workspace.Modified, status, "escalated builds report every resource Modified")
}

func TestCommitIsIdempotentAfterClose(t *testing.T) {
	dir := t.TempDir()
	ctx, err := NewBasicContext(workspace.NewFilesystem(), filepath.Join(dir, "state.bin"), nil, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Commit(nil))
	require.NoError(t, ctx.Commit(nil), "a second commit on a closed context must be a no-op")
}

func TestMarkSkipExecutionRequiresNoProcessedResources(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.txt")
	writeFile(t, input, "hello")
	ctx, err := NewBasicContext(workspace.NewFilesystem(), filepath.Join(dir, "state.bin"), nil, nil)
	require.NoError(t, err)

	meta, err := ctx.RegisterInput(input)
	require.NoError(t, err)
	_, err = meta.Process()
	require.NoError(t, err)

	err = ctx.MarkSkipExecution()
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestBuildFailureErrorWithoutSink(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.txt")
	writeFile(t, input, "hello")
	ctx, err := NewBasicContext(workspace.NewFilesystem(), filepath.Join(dir, "state.bin"), nil, nil)
	require.NoError(t, err)

	meta, err := ctx.RegisterInput(input)
	require.NoError(t, err)
	res, err := meta.Process()
	require.NoError(t, err)
	require.NoError(t, res.AddMessage(1, 1, "boom", 2 /* message.Error */, nil))

	err = ctx.Commit(nil)
	var buildErr *BuildFailureError
	require.ErrorAs(t, err, &buildErr)
}

func TestBuildFailureSuppressedWithSink(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.txt")
	writeFile(t, input, "hello")
	ctx, err := NewBasicContext(workspace.NewFilesystem(), filepath.Join(dir, "state.bin"), nil, nil)
	require.NoError(t, err)

	meta, err := ctx.RegisterInput(input)
	require.NoError(t, err)
	res, err := meta.Process()
	require.NoError(t, err)
	require.NoError(t, res.AddMessage(1, 1, "boom", 2, nil))

	collector := sink.NewCollector()
	require.NoError(t, ctx.Commit(collector))
	require.Len(t, collector.Cleared(), 1)
}
