package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

const validYAML = `
source_db:
  dialect: oracle
  user: src_user
  password: secret
  dsn: src-dsn
target_db:
  dialect: mysql
  user: tgt_user
  password: secret
  dsn: tgt-dsn
table_config:
  - schema: APP
    table: ORDERS
    primary_keys: [id]
    batch_size: 500
flags:
  enable_restart: true
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "src-dsn", cfg.SourceDB.DSN)
	assert.Equal(t, 4, cfg.MaxThreads) // default applied
	assert.Equal(t, "DB_SENTINEL_AUDIT", cfg.Paths.AuditTable)
	assert.Equal(t, "./output", cfg.Paths.SourceSQLDir)
	assert.Equal(t, "./output", cfg.Paths.TargetSQLDir)
	assert.Equal(t, "./output", cfg.Paths.ReportDir)
	assert.Equal(t, "./output/audit.log", cfg.Paths.AuditLog)
	assert.True(t, cfg.Flags.EnableRestart)
	require.Len(t, cfg.TableConfig, 1)
	assert.Equal(t, []string{"id"}, cfg.TableConfig[0].PrimaryKeys)
}

func TestLoadMissingRequiredSections(t *testing.T) {
	_, err := Load(writeConfig(t, `source_db: {}`))
	require.Error(t, err)
}

func TestLoadEmptyTableConfig(t *testing.T) {
	_, err := Load(writeConfig(t, `
source_db: {dsn: a}
target_db: {dsn: b}
table_config: []
`))
	require.Error(t, err)
}

func TestLoadMissingPrimaryKeys(t *testing.T) {
	_, err := Load(writeConfig(t, `
source_db: {dsn: a}
target_db: {dsn: b}
table_config:
  - schema: s
    table: t
`))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestTableConfigToTableSpec(t *testing.T) {
	tc := TableConfig{Schema: "s", Table: "t", PrimaryKeys: []string{"id"}, BatchSize: 10}
	spec := tc.ToTableSpec()
	assert.Equal(t, "s.t", spec.QualifiedName())
	assert.Equal(t, 10, spec.BatchSize)
}
