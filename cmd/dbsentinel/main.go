// Command dbsentinel runs one comparison job: it reads config.yaml from
// the working directory, compares every configured table between source
// and target, emits remediation SQL, and writes a CSV summary report.
//
// There are no flags beyond kong's built-in --help; every run reads its
// full configuration from config.yaml (spec §6).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/block/dbsentinel/pkg/checkpoint"
	"github.com/block/dbsentinel/pkg/config"
	"github.com/block/dbsentinel/pkg/dbconn"
	"github.com/block/dbsentinel/pkg/orchestrator"
	"github.com/block/dbsentinel/pkg/report"
	"github.com/block/dbsentinel/pkg/sentinelerr"
)

// Run is the CLI's single command: read config.yaml, compare every
// configured table, write remediation SQL and a report. It takes no
// flags beyond kong's built-in --help.
type Run struct{}

func main() {
	var cli Run
	ctx := kong.Parse(&cli)
	ctx.FatalIfErrorf(ctx.Run())
}

func (r *Run) Run() error {
	logger := logrus.New()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		return err
	}
	if cfg.Flags.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.AuditLog), 0o755); err != nil {
		return &sentinelerr.ConfigError{Cause: err}
	}
	auditLog, err := os.OpenFile(cfg.Paths.AuditLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &sentinelerr.ConfigError{Cause: err}
	}
	defer auditLog.Close()
	logger.SetOutput(io.MultiWriter(os.Stderr, auditLog))

	ctx := context.Background()
	dbCfg := dbconn.NewDBConfig()

	source, err := dbconn.New(ctx, "source", cfg.SourceDB.Dialect, cfg.SourceDB.DSN, dbCfg)
	if err != nil {
		return &sentinelerr.ConnectError{Role: "source", Cause: err}
	}
	defer source.Close()

	target, err := dbconn.New(ctx, "target", cfg.TargetDB.Dialect, cfg.TargetDB.DSN, dbCfg)
	if err != nil {
		return &sentinelerr.ConnectError{Role: "target", Cause: err}
	}
	defer target.Close()

	job := orchestrator.NewJobContext(source, target)
	logger.Infof("starting job job_id=%s run_id=%s", job.JobID, job.RunID)

	var checkpoints *checkpoint.Store
	if cfg.Flags.EnableRestart || cfg.Flags.EnableAuditTable {
		checkpoints = checkpoint.NewStore(source, cfg.Paths.MetadataTable, cfg.Paths.AuditTable)
		if err := checkpoints.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	orch := orchestrator.New(job, orchestrator.Options{
		EnableRestart:        cfg.Flags.EnableRestart,
		EnableAuditTable:     cfg.Flags.EnableAuditTable,
		EnableReverification: cfg.Flags.EnableReverification,
		MaxThreads:           cfg.MaxThreads,
		SourceSQLDir:         cfg.Paths.SourceSQLDir,
		TargetSQLDir:         cfg.Paths.TargetSQLDir,
		Logger:               logger,
		Checkpoints:          checkpoints,
	})

	var rows []report.TableRow
	for _, tc := range cfg.TableConfig {
		spec := tc.ToTableSpec()
		summary, err := orch.RunTable(ctx, spec)
		if err != nil {
			logger.Errorf("table %s failed: %v", spec.QualifiedName(), err)
			continue
		}
		rows = append(rows, report.TableRow{
			JobID: summary.JobID, TableName: summary.Table, Schema: summary.Schema,
			RowCount: summary.RowCount, MismatchCount: summary.MismatchCount,
			MissingInSource: summary.MissingInSource, MissingInTarget: summary.MissingInTarget,
			Status: string(summary.Status), StartTime: summary.StartTime, EndTime: summary.EndTime,
			SourceSQLFile: summary.SourceSQLFile, TargetSQLFile: summary.TargetSQLFile,
			NoOpUpdateCount: summary.NoOpUpdateCount, ErrorBatchCount: summary.ErrorBatchCount,
		})
	}

	if err := os.MkdirAll(cfg.Paths.ReportDir, 0o755); err != nil {
		return err
	}
	reportPath := filepath.Join(cfg.Paths.ReportDir, fmt.Sprintf("comparison_report_%s.csv", job.RunID))
	if err := report.Write(reportPath, rows); err != nil {
		return err
	}
	logger.Infof("job complete, report written to %s", reportPath)
	return nil
}
