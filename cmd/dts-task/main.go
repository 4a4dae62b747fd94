// Command dts-task runs a single data-movement pipeline task: it loads a
// TOML config file, wires the configured Extractor/Sinker/Parallelizer/
// checkpoint store/Monitor, and hands them to an internal/task.Task to run
// to completion, exiting with the code internal/task.ExitCode derives from
// the outcome (spec.md §6).
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/programlife555/ape-dts/internal/checkpoint"
	"github.com/programlife555/ape-dts/internal/config"
	"github.com/programlife555/ape-dts/internal/event"
	"github.com/programlife555/ape-dts/internal/extract"
	"github.com/programlife555/ape-dts/internal/extract/snapshot"
	"github.com/programlife555/ape-dts/internal/filter"
	"github.com/programlife555/ape-dts/internal/logging"
	"github.com/programlife555/ape-dts/internal/monitor"
	"github.com/programlife555/ape-dts/internal/parallel"
	"github.com/programlife555/ape-dts/internal/queue"
	"github.com/programlife555/ape-dts/internal/sink"
	"github.com/programlife555/ape-dts/internal/sink/foxlake"
	sqlsink "github.com/programlife555/ape-dts/internal/sink/sql"
	"github.com/programlife555/ape-dts/internal/task"
)

func main() {
	configPath := flag.String(`config`, ``, `path to the task's TOML config file`)
	flag.Parse()

	logger := logging.NewStderr(logging.LevelInformational)

	err := run(*configPath, logger)
	code := task.ExitCode(err)
	if err != nil {
		logger.Err(err).Log(`task exited with error`)
	}
	os.Exit(code)
}

func run(configPath string, logger *logging.Logger) error {
	if configPath == `` {
		return task.WrapConfigError(fmt.Errorf(`cmd/dts-task: -config is required`))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return task.WrapConfigError(err)
	}
	if err := cfg.ParseAll(); err != nil {
		return task.WrapConfigError(err)
	}

	pk := func(event.TableName) []string { return []string{`id`} }

	extractor, extractorCloser, err := buildExtractor(cfg)
	if err != nil {
		return task.WrapConfigError(err)
	}
	defer extractorCloser()

	n := cfg.Parallelizer.ParallelSize
	sharedSinker, sinkerCloser, err := buildSinker(cfg, pk)
	if err != nil {
		return task.WrapConfigError(err)
	}
	defer sinkerCloser()

	// *sql.DB (and foxlake.Merger, which wraps one) is already safe for
	// concurrent use by multiple goroutines, so every worker slot shares
	// the single underlying connection pool rather than opening N of them.
	workers := make([]sink.Sinker, n)
	for i := range workers {
		workers[i] = sharedSinker
	}

	policy, err := parsePolicy(cfg.Sinker.ConflictPolicy)
	if err != nil {
		return task.WrapConfigError(err)
	}

	pool := sink.NewPool(workers, policy, nil, nil)

	strategy, err := config.ParseParallelType(cfg.Parallelizer.ParallelType)
	if err != nil {
		return task.WrapConfigError(err)
	}
	parallelizer := parallel.New(strategy, n, pk)
	parallelizer.Logger = logger

	router := filter.New(filter.Config{
		DoDbs:        cfg.Filter.DoDbs,
		IgnoreDbs:    cfg.Filter.IgnoreDbs,
		DoTables:     cfg.Filter.DoTables,
		IgnoreTables: cfg.Filter.IgnoreTables,
		DoColumns:    cfg.Filter.DoColumns,
		HeartbeatKey: cfg.Extractor.HeartbeatKey,
	})

	store, storeCloser, err := buildCheckpointStore(cfg)
	if err != nil {
		return task.WrapConfigError(err)
	}
	defer storeCloser()

	q := queue.New(&queue.Config{
		BufferSize:    cfg.Extractor.BufferSize,
		BatchSize:     cfg.Extractor.BatchSize,
		FlushInterval: cfg.Extractor.BatchSinkInterval(),
	})

	t := &task.Task{
		TaskID:             cfg.Pipeline.TaskID,
		DbType:             cfg.Extractor.DbType,
		Extractor:          extractor,
		Queue:              q,
		Router:             router,
		Parallelizer:       parallelizer,
		Pool:               pool,
		Checkpoints:        store,
		Monitor:            monitor.New(),
		Logger:             logger,
		CheckpointInterval: cfg.Pipeline.CheckpointInterval(),
		ShutdownTimeout:    cfg.Runtime.ShutdownTimeout(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return t.Run(ctx)
}

func parsePolicy(s string) (config.ConflictPolicy, error) {
	return config.ParseConflictPolicy(s), nil
}

func driverName(dbType string) (string, error) {
	switch config.DbType(dbType) {
	case config.DbTypeMysql:
		return `mysql`, nil
	case config.DbTypePg:
		return `postgres`, nil
	default:
		return ``, fmt.Errorf(`cmd/dts-task: db_type %q has no database/sql driver`, dbType)
	}
}

// buildExtractor wires the configured Extractor. Only ExtractTypeSnapshot/
// ExtractTypeScan have a concrete implementation (internal/extract/snapshot);
// wire-protocol streaming extractors (binlog/WAL/oplog CDC) are out of
// scope (see DESIGN.md).
func buildExtractor(cfg *config.Config) (extract.Extractor, func(), error) {
	switch config.ExtractType(cfg.Extractor.ExtractType) {
	case config.ExtractTypeSnapshot, config.ExtractTypeScan:
		driver, err := driverName(cfg.Extractor.DbType)
		if err != nil {
			return nil, nil, err
		}
		db, err := sql.Open(driver, cfg.Extractor.URL)
		if err != nil {
			return nil, nil, fmt.Errorf(`cmd/dts-task: open extractor db: %w`, err)
		}
		tables := tableSpecsFromFilter(cfg.Filter.DoTables)
		ext := snapshot.New(db, tables, cfg.Extractor.BatchSize, cfg.Extractor.HeartbeatInterval())
		return ext, func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf(`cmd/dts-task: extract_type %q has no concrete implementation`, cfg.Extractor.ExtractType)
	}
}

// tableSpecsFromFilter builds a TableSpec per literal "schema.table" entry
// in doTables (glob patterns are skipped: a snapshot scan needs concrete
// table identities, not admission patterns). Every table defaults to a
// single "id" primary key column, the common case; finer per-table PK
// metadata isn't modeled by this CLI's flat config.
func tableSpecsFromFilter(doTables []string) []snapshot.TableSpec {
	var specs []snapshot.TableSpec
	for _, t := range doTables {
		if strings.ContainsAny(t, `*?[`) {
			continue
		}
		schema, table, ok := strings.Cut(t, `.`)
		if !ok {
			continue
		}
		specs = append(specs, snapshot.TableSpec{
			Table:  event.TableName{Schema: schema, Table: table},
			PKCols: []string{`id`},
		})
	}
	return specs
}

// buildSinker wires the configured Sinker. SinkTypeSql targets any
// database/sql driver via internal/sink/sql; SinkTypeMerge against
// DbTypeFoxlake targets internal/sink/foxlake.
func buildSinker(cfg *config.Config, pk sqlsink.PKResolver) (sink.Sinker, func(), error) {
	switch config.SinkType(cfg.Sinker.SinkType) {
	case config.SinkTypeSql, config.SinkTypeWrite:
		driver, err := driverName(cfg.Sinker.DbType)
		if err != nil {
			return nil, nil, err
		}
		db, err := sql.Open(driver, cfg.Sinker.URL)
		if err != nil {
			return nil, nil, fmt.Errorf(`cmd/dts-task: open sinker db: %w`, err)
		}
		var dialect sqlsink.Dialect
		switch config.DbType(cfg.Sinker.DbType) {
		case config.DbTypePg:
			dialect = sqlsink.PostgresDialect{}
		default:
			dialect = sqlsink.MySQLDialect{}
		}
		writer := &sqlsink.Writer[*sql.DB, sql.Result]{DB: db}
		s := sqlsink.NewSinker(writer, dialect, pk)
		return s, func() { s.Close() }, nil

	case config.SinkTypeMerge:
		// Foxlake is reached over the MySQL wire protocol.
		db, err := sql.Open(`mysql`, cfg.Sinker.URL)
		if err != nil {
			return nil, nil, fmt.Errorf(`cmd/dts-task: open foxlake db: %w`, err)
		}
		merger := foxlake.NewMerger(db, foxlake.S3Config{}, nil, cfg.Sinker.MergeBatchFileCount)
		return merger, func() { merger.Close() }, nil

	default:
		return nil, nil, fmt.Errorf(`cmd/dts-task: sink_type %q has no concrete implementation`, cfg.Sinker.SinkType)
	}
}

func buildCheckpointStore(cfg *config.Config) (checkpoint.Store, func(), error) {
	switch cfg.Checkpoint.StoreType {
	case `memory`:
		s := checkpoint.NewMemoryStore()
		return s, func() { s.Close() }, nil

	case `redis`:
		opts, err := redis.ParseURL(cfg.Checkpoint.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf(`cmd/dts-task: parse checkpoint redis_url: %w`, err)
		}
		client := redis.NewClient(opts)
		s := checkpoint.NewRedisStore(client, cfg.Checkpoint.RedisKey)
		return s, func() { s.Close() }, nil

	case ``, `file`:
		dir := cfg.Checkpoint.FileDir
		if dir == `` {
			dir = `./checkpoints`
		}
		s := checkpoint.NewFileStore(dir)
		return s, func() { s.Close() }, nil

	default:
		return nil, nil, fmt.Errorf(`cmd/dts-task: checkpoint store_type %q is not recognized`, cfg.Checkpoint.StoreType)
	}
}
