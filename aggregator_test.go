package incrementalbuild

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/incrementalbuild/workspace"
)

// concatCreator writes the concatenation of every input's contents to the
// output.
var concatCreator = AggregateCreatorFunc(func(output Output, inputs []AggregateInput) error {
	stream, err := output.NewOutputStream()
	if err != nil {
		return err
	}
	defer stream.Close()
	for _, in := range inputs {
		contents, err := os.ReadFile(string(in.ID()))
		if err != nil {
			return err
		}
		if _, err := stream.Write(contents); err != nil {
			return err
		}
	}
	return nil
})

func TestAggregatorFirstBuildCreatesOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(src, "b.txt"), "b")

	statePath := filepath.Join(dir, "state.bin")
	outputPath := filepath.Join(dir, "out.bin")

	ctx, err := NewAggregatorContext(workspace.NewFilesystem(), statePath, map[string]any{"v": "1"}, nil)
	require.NoError(t, err)

	out, err := ctx.RegisterOutput(outputPath)
	require.NoError(t, err)
	require.NoError(t, ctx.AssociateInputs(out, src, []string{"**/*.txt"}, nil))

	created, err := ctx.CreateIfNecessary(out, concatCreator)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, ctx.Commit(nil))

	contents, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Len(t, contents, 2) // "a" and "b" in some order
}

func buildAggregate(t *testing.T, statePath, outputPath, src string) bool {
	t.Helper()
	ctx, err := NewAggregatorContext(workspace.NewFilesystem(), statePath, map[string]any{"v": "1"}, nil)
	require.NoError(t, err)
	out, err := ctx.RegisterOutput(outputPath)
	require.NoError(t, err)
	require.NoError(t, ctx.AssociateInputs(out, src, []string{"**/*.txt"}, nil))
	created, err := ctx.CreateIfNecessary(out, concatCreator)
	require.NoError(t, err)
	require.NoError(t, ctx.Commit(nil))
	return created
}

func TestAggregatorNoOpRebuildSkipsCreate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	writeFile(t, filepath.Join(src, "a.txt"), "a")

	statePath := filepath.Join(dir, "state.bin")
	outputPath := filepath.Join(dir, "out.bin")

	require.True(t, buildAggregate(t, statePath, outputPath, src), "first build must create the output")

	before, err := os.Stat(outputPath)
	require.NoError(t, err)

	require.False(t, buildAggregate(t, statePath, outputPath, src), "unchanged rebuild must not recreate the output")

	after, err := os.Stat(outputPath)
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime(), "the output file must not have been rewritten")
}

func TestAggregatorRecreatesWhenInputModified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	inputPath := filepath.Join(src, "a.txt")
	writeFile(t, inputPath, "a")

	statePath := filepath.Join(dir, "state.bin")
	outputPath := filepath.Join(dir, "out.bin")

	require.True(t, buildAggregate(t, statePath, outputPath, src))
	require.False(t, buildAggregate(t, statePath, outputPath, src))

	// Modify after sleeping past filesystem mtime resolution.
	time.Sleep(10 * time.Millisecond)
	writeFile(t, inputPath, "aa")

	require.True(t, buildAggregate(t, statePath, outputPath, src), "a modified input must trigger regeneration")

	contents, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	require.Equal(t, "aa", string(contents))
}

func TestAggregatorDeletesOrphanedOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	writeFile(t, filepath.Join(src, "a.txt"), "a")

	statePath := filepath.Join(dir, "state.bin")
	outputPath := filepath.Join(dir, "out.bin")
	require.True(t, buildAggregate(t, statePath, outputPath, src))

	_, err := os.Stat(outputPath)
	require.NoError(t, err, "first build must have created the output")

	// Second build never re-registers the output at all.
	ctx, err := NewAggregatorContext(workspace.NewFilesystem(), statePath, map[string]any{"v": "1"}, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Commit(nil))

	_, err = os.Stat(outputPath)
	require.True(t, os.IsNotExist(err), "an output not reasserted this build must be deleted at commit")
}
