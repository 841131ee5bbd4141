package checkpoint

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/block/dbsentinel/pkg/dbconn"
	"github.com/block/dbsentinel/pkg/dialect"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	conn := dbconn.NewFromDB(db, dialect.MySQL{}, "source", nil)
	return NewStore(conn, "DB_SENTINEL_METADATA", "DB_SENTINEL_AUDIT"), mock
}

func TestStoreSaveUpserts(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO DB_SENTINEL_METADATA").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Save(context.Background(), BatchCheckpoint{
		JobID: "job-1", Schema: "s", Table: "t", BatchID: 0,
		LastOffset: 100, ProcessedRows: 100, TotalRows: 1000,
		Status: StatusCompleted, LastProcessedTime: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLoadCompleted(t *testing.T) {
	store, mock := newTestStore(t)
	rows := sqlmock.NewRows([]string{"batch_id"}).AddRow(0).AddRow(1).AddRow(2)
	mock.ExpectQuery("SELECT batch_id FROM DB_SENTINEL_METADATA").WillReturnRows(rows)

	completed, err := store.LoadCompleted(context.Background(), "job-1", "s", "t")
	require.NoError(t, err)
	require.True(t, completed[0])
	require.True(t, completed[1])
	require.True(t, completed[2])
	require.NoError(t, mock.ExpectationsWereMet())
}

func newOracleTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	conn := dbconn.NewFromDB(db, dialect.Oracle{}, "source", nil)
	return NewStore(conn, "DB_SENTINEL_METADATA", "DB_SENTINEL_AUDIT"), mock
}

func TestStoreSaveUpsertsOracle(t *testing.T) {
	store, mock := newOracleTestStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("MERGE INTO DB_SENTINEL_METADATA").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Save(context.Background(), BatchCheckpoint{
		JobID: "job-1", Schema: "s", Table: "t", BatchID: 0,
		LastOffset: 100, ProcessedRows: 100, TotalRows: 1000,
		Status: StatusCompleted, LastProcessedTime: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLoadCompletedOracle(t *testing.T) {
	store, mock := newOracleTestStore(t)
	rows := sqlmock.NewRows([]string{"batch_id"}).AddRow(0).AddRow(1)
	mock.ExpectQuery("SELECT batch_id FROM DB_SENTINEL_METADATA").WillReturnRows(rows)

	completed, err := store.LoadCompleted(context.Background(), "job-1", "s", "t")
	require.NoError(t, err)
	require.True(t, completed[0])
	require.True(t, completed[1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreLogEvent(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO DB_SENTINEL_AUDIT").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.LogEvent(context.Background(), AuditEvent{
		JobID: "job-1", EventTime: time.Now(), EventType: EventBatch,
		Schema: "s", Table: "t", BatchID: 0, RowCount: 100, Status: StatusCompleted,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
