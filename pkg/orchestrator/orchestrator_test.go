package orchestrator

import (
	"context"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/block/dbsentinel/pkg/dbconn"
	"github.com/block/dbsentinel/pkg/dialect"
	"github.com/block/dbsentinel/pkg/fetch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func newMockConn(t *testing.T, role string) (*dbconn.Connector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)
	return dbconn.NewFromDB(db, dialect.MySQL{}, role, nil), mock
}

func TestRunTableAllEqual(t *testing.T) {
	sourceConn, sourceMock := newMockConn(t, "source")
	targetConn, targetMock := newMockConn(t, "target")

	sourceMock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	sourceMock.ExpectQuery("SELECT .* FROM").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).AddRow("1", "a").AddRow("2", "b"))
	targetMock.ExpectQuery("SELECT .* FROM").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).AddRow("1", "a").AddRow("2", "b"))

	dir := t.TempDir()
	job := NewJobContext(sourceConn, targetConn)
	o := New(job, Options{MaxThreads: 2, SourceSQLDir: dir, TargetSQLDir: dir})

	spec := fetch.TableSpec{
		Schema: "s", Table: "t", PKColumns: []string{"id"}, Columns: []string{"id", "name"}, BatchSize: 100,
	}
	summary, err := o.RunTable(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Zero(t, summary.MismatchCount)
	assert.Zero(t, summary.MissingInSource)
	assert.Zero(t, summary.MissingInTarget)

	src, err := os.ReadFile(summary.SourceSQLFile)
	require.NoError(t, err)
	assert.Empty(t, string(src))
}

func TestRunTableOneMismatch(t *testing.T) {
	sourceConn, sourceMock := newMockConn(t, "source")
	targetConn, targetMock := newMockConn(t, "target")

	sourceMock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	sourceMock.ExpectQuery("SELECT .* FROM").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).AddRow("1", "a").AddRow("2", "b"))
	targetMock.ExpectQuery("SELECT .* FROM").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).AddRow("1", "a").AddRow("2", "B"))

	dir := t.TempDir()
	job := NewJobContext(sourceConn, targetConn)
	o := New(job, Options{MaxThreads: 2, SourceSQLDir: dir, TargetSQLDir: dir})

	spec := fetch.TableSpec{
		Schema: "s", Table: "t", PKColumns: []string{"id"}, Columns: []string{"id", "name"}, BatchSize: 100,
	}
	summary, err := o.RunTable(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, StatusMismatch, summary.Status)
	assert.Equal(t, 1, summary.MismatchCount)

	src, err := os.ReadFile(summary.SourceSQLFile)
	require.NoError(t, err)
	assert.Contains(t, string(src), "UPDATE s.t SET name = 'b' WHERE id = '2';")

	tgt, err := os.ReadFile(summary.TargetSQLFile)
	require.NoError(t, err)
	assert.Empty(t, string(tgt))
}
