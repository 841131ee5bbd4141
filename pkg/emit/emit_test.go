package emit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/block/dbsentinel/pkg/dialect"
	"github.com/block/dbsentinel/pkg/fetch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func newEmitter(t *testing.T) (*Emitter, string, string) {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "source.sql")
	tgtPath := filepath.Join(dir, "target.sql")
	return New(dialect.MySQL{}, "schema.table", srcPath, tgtPath), srcPath, tgtPath
}

func TestEmitMismatchProducesUpdate(t *testing.T) {
	e, srcPath, tgtPath := newEmitter(t)

	sourceRows := map[string]fetch.Row{
		"2": {Columns: []string{"id", "name"}, Values: []any{"2", "b"}},
	}

	err := e.Emit(nil, []string{"2"}, nil, []string{"id"}, sourceRows, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(srcPath)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE schema.table SET name = 'b' WHERE id = '2';\n", string(got))

	empty, err := os.ReadFile(tgtPath)
	require.NoError(t, err)
	assert.Empty(t, string(empty))
}

func TestEmitMissingInTargetProducesInsert(t *testing.T) {
	e, srcPath, _ := newEmitter(t)
	sourceRows := map[string]fetch.Row{
		"2": {Columns: []string{"id", "name"}, Values: []any{"2", "b"}},
	}
	err := e.Emit([]string{"2"}, nil, nil, []string{"id"}, sourceRows, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(srcPath)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO schema.table (id, name) VALUES ('2', 'b');\n", string(got))
}

func TestEmitMissingInSourceProducesTargetInsert(t *testing.T) {
	e, _, tgtPath := newEmitter(t)
	targetRows := map[string]fetch.Row{
		"2": {Columns: []string{"id", "name"}, Values: []any{"2", "b"}},
	}
	err := e.Emit(nil, nil, []string{"2"}, []string{"id"}, nil, targetRows)
	require.NoError(t, err)

	got, err := os.ReadFile(tgtPath)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO schema.table (id, name) VALUES ('2', 'b');\n", string(got))
}

func TestEmitAppendsAcrossCalls(t *testing.T) {
	e, srcPath, _ := newEmitter(t)
	sourceRows := map[string]fetch.Row{
		"1": {Columns: []string{"id"}, Values: []any{"1"}},
	}
	require.NoError(t, e.Emit([]string{"1"}, nil, nil, []string{"id"}, sourceRows, nil))
	require.NoError(t, e.Emit([]string{"1"}, nil, nil, []string{"id"}, sourceRows, nil))

	got, err := os.ReadFile(srcPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(got), "\n"), "\n")
	assert.Len(t, lines, 2)
}

func TestSQLValueNullAndQuoteEscaping(t *testing.T) {
	assert.Equal(t, "NULL", sqlValue(nil))
	assert.Equal(t, "'it''s'", sqlValue("it's"))
	assert.Equal(t, "'42'", sqlValue(42))
}
