package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/kevin07696/voucher-ledger/internal/config"
	"github.com/kevin07696/voucher-ledger/internal/db"
	"github.com/kevin07696/voucher-ledger/pkg/logging"
)

const dialect = "postgres"

var (
	flags = flag.NewFlagSet("migrate", flag.ExitOnError)
	dir   = flags.String("dir", "", "directory with migration files (default: embedded migrations)")
	dsn   = flags.String("dsn", "", "database URL (default: built from DB_* environment)")
)

func main() {
	flags.Usage = usage
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) < 1 {
		flags.Usage()
		return
	}
	command := args[0]

	logger, err := logging.New(os.Getenv("ENVIRONMENT"), "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	url := *dsn
	if url == "" {
		cfg := config.Default()
		if err := cfg.ApplyEnv(); err != nil {
			logger.Fatal("Invalid database environment", zap.Error(err))
		}
		url = cfg.Database.ConnectionString()
	}

	sqlDB, err := sql.Open("pgx", url)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := goose.SetDialect(dialect); err != nil {
		logger.Fatal("Failed to set dialect", zap.Error(err))
	}

	migrations := *dir
	if migrations == "" {
		goose.SetBaseFS(db.Migrations)
		migrations = db.MigrationsDir
	}

	if err := goose.Run(command, sqlDB, migrations, args[1:]...); err != nil {
		logger.Fatal("Migration failed", zap.String("command", command), zap.Error(err))
	}
	logger.Info("Migration finished", zap.String("command", command))
}

func usage() {
	fmt.Print(`Usage: migrate [-dir DIR] [-dsn URL] COMMAND

Commands:
    up                   Migrate the DB to the most recent version available
    up-by-one            Migrate the DB up by 1
    up-to VERSION        Migrate the DB to a specific VERSION
    down                 Roll back the version by 1
    down-to VERSION      Roll back to a specific VERSION
    redo                 Re-run the latest migration
    reset                Roll back all migrations
    status               Dump the migration status for the current DB
    version              Print the current version of the database
    create NAME [sql|go] Creates new migration file with the current timestamp

Examples:
    migrate up
    migrate -dsn postgres://localhost/vouchers status
    migrate -dir internal/db/migrations create add_index sql
`)
}
