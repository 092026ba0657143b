package sql

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/sig-0/fxcache/cmd/env"
	dbpkg "github.com/sig-0/fxcache/storage/sql"
)

const schemaDir = "schema"

var errUnknownSchema = errors.New("unknown schema file")

type migrateCfg struct {
	rootCfg *sqlCfg
}

// newMigrateCmd creates the sql migrate command
func newMigrateCmd(rootCfg *sqlCfg) *ffcli.Command {
	cfg := &migrateCfg{
		rootCfg: rootCfg,
	}

	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	rootCfg.RegisterFlags(flags)

	return &ffcli.Command{
		Name:       "migrate",
		ShortUsage: "sql migrate [flags] [001_kv_items.sql ...]",
		LongHelp: "Creates the kv_items table backing the rate cache namespaces. " +
			"With no arguments, every bundled schema file is applied in order",
		FlagSet: flags,
		Exec:    cfg.exec,
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *migrateCfg) exec(ctx context.Context, args []string) error {
	files, err := schemaFiles(dbpkg.SchemaFS, args)
	if err != nil {
		return err
	}

	dsn := c.rootCfg.dbURL
	if dsn == "" {
		_ = godotenv.Load() //nolint:errcheck // the DB URL may come from the environment

		dsn = os.Getenv(env.Prefix + env.DBURLSuffix)
	}

	if dsn == "" {
		return fmt.Errorf("missing -db-url or %s", env.Prefix+env.DBURLSuffix)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("unable to open kv store DB: %w", err)
	}

	defer func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "unable to close kv store DB: %s\n", err)
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("unable to reach kv store DB: %w", err)
	}

	return applySchema(ctx, db, dbpkg.SchemaFS, files, os.Stdout)
}

// schemaFiles resolves the requested schema files against the bundled ones.
// No names selects every bundled file, in name order
func schemaFiles(schema fs.FS, names []string) ([]string, error) {
	bundled, err := fs.Glob(schema, path.Join(schemaDir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("unable to list bundled schema: %w", err)
	}

	sort.Strings(bundled)

	if len(names) == 0 {
		return bundled, nil
	}

	known := make(map[string]struct{}, len(bundled))
	for _, f := range bundled {
		known[f] = struct{}{}
	}

	out := make([]string, 0, len(names))

	for _, name := range names {
		f := path.Join(schemaDir, path.Base(name))

		if _, ok := known[f]; !ok {
			return nil, fmt.Errorf("%w: %s", errUnknownSchema, name)
		}

		out = append(out, f)
	}

	return out, nil
}

// execer is the part of *sql.DB the schema is applied through
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// applySchema runs every schema file against the kv store, stopping at the first failure
func applySchema(
	ctx context.Context,
	db execer,
	schema fs.FS,
	files []string,
	out io.Writer,
) error {
	for _, f := range files {
		stmt, err := fs.ReadFile(schema, f)
		if err != nil {
			return fmt.Errorf("unable to read schema %s: %w", f, err)
		}

		if _, err := db.ExecContext(ctx, string(stmt)); err != nil {
			return fmt.Errorf("unable to apply schema %s: %w", f, err)
		}

		fmt.Fprintf(out, "kv_items: applied %s\n", path.Base(f))
	}

	fmt.Fprintf(out, "kv_items: %d schema file(s) applied\n", len(files))

	return nil
}
