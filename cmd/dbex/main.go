// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

// Command dbex drives database migrations and declarative data loads
// against SQL Server, MySQL and PostgreSQL databases.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"time"

	"dbex.io/dbex/data"
	"dbex.io/dbex/sql/dialect"
	"dbex.io/dbex/sql/inspect"
	"dbex.io/dbex/sql/migrate"
	"dbex.io/dbex/sql/reconcile"
	"dbex.io/dbex/sql/sqlparse"
	_ "dbex.io/dbex/sql/mysql"
	_ "dbex.io/dbex/sql/postgres"
	_ "dbex.io/dbex/sql/sqlserver"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Exit codes per failure class.
const (
	exitOK = iota
	exitGeneral
	exitScriptSyntax
	exitReconcile
	exitData
	exitNotConfirmed
	exitIntrospection
	exitResourceNotFound
	exitCancelled
)

type options struct {
	dialect       string
	connString    string
	connVarname   string
	schemaOrder   []string
	output        string
	assemblies    []string
	entryOnly     bool
	params        []string
	acceptPrompts bool
	verbose       bool
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRoot(log)
	root.SetArgs(normalizeArgs(os.Args[1:]))
	if err := root.ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(exitCode(err))
	}
}

// normalizeArgs rewrites the documented single-dash option forms (-cs,
// -cv, -so, -eo) to their double-dash spellings. pflag would otherwise
// parse them as clusters of single-letter shorthands.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		switch name, _, _ := strings.Cut(a, "="); name {
		case "-cs", "-cv", "-so", "-eo":
			a = "-" + a
		}
		out[i] = a
	}
	return out
}

// normalizeFlagName maps the two-letter aliases onto the full option
// names, so --cs and the normalized -cs both resolve.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "cs":
		name = "connection-string"
	case "cv":
		name = "connection-varname"
	case "so":
		name = "schema-order"
	case "eo":
		name = "entry-assembly-only"
	}
	return pflag.NormalizedName(name)
}

func newRoot(log *logrus.Logger) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "dbex",
		Short:         "Database migration and data-seeding tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if opts.verbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.dialect, "dialect", "d", "sqlserver",
		fmt.Sprintf("database engine (%s)", strings.Join(dialect.Names(), ", ")))
	pf.StringVar(&opts.connString, "connection-string", "", "database connection string")
	pf.StringVar(&opts.connVarname, "connection-varname", "", "environment variable holding the connection string")
	pf.StringArrayVar(&opts.schemaOrder, "schema-order", nil, "schema precedence for the Schema phase (repeatable)")
	pf.StringVarP(&opts.output, "output", "o", "", "write the SQL to the given file instead of executing it")
	pf.StringArrayVarP(&opts.assemblies, "assembly", "a", nil, "script bundle directory, probed in order (repeatable)")
	pf.BoolVar(&opts.entryOnly, "entry-assembly-only", false, "probe only the working directory for scripts")
	pf.StringArrayVarP(&opts.params, "param", "p", nil, "runtime parameter name=value (repeatable)")
	pf.BoolVar(&opts.acceptPrompts, "accept-prompts", false, "bypass destructive-action confirmation prompts")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	// Short-form aliases matching the documented option names.
	root.SetGlobalNormalizationFunc(normalizeFlagName)

	for _, c := range []struct {
		use   string
		short string
		cmd   migrate.Command
	}{
		{"drop", "Drop the database", migrate.CommandDrop},
		{"create", "Create the database when it does not exist", migrate.CommandCreate},
		{"migrate", "Apply the pending migration scripts", migrate.CommandMigrate},
		{"schema", "Drop and re-create the idempotent schema objects", migrate.CommandSchema},
		{"reset", "Delete all data from the database", migrate.CommandReset},
		{"data", "Load the declarative data files", migrate.CommandData},
		{"deploy", "Migrate and Schema", migrate.CommandDeploy},
		{"deploywithdata", "Migrate, Schema and Data", migrate.CommandDeployWithData},
		{"all", "Create, Migrate, Schema and Data", migrate.CommandAll},
		{"dropandall", "Drop, then All", migrate.CommandDropAndAll},
		{"resetandall", "Reset, then All", migrate.CommandResetAndAll},
		{"resetanddata", "Reset, then Data", migrate.CommandResetAndData},
	} {
		c := c
		root.AddCommand(&cobra.Command{
			Use:   c.use,
			Short: c.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runPhases(cmd.Context(), log, opts, c.cmd)
			},
		})
	}
	root.AddCommand(&cobra.Command{
		Use:   "execute <sql> [<sql>...]",
		Short: "Execute ad-hoc SQL statements against the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, closeFn, err := newMigrator(log, opts)
			if err != nil {
				return err
			}
			defer closeFn()
			return m.Execute(cmd.Context(), args...)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "script [name]",
		Short: "Scaffold a new timestamped migration script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(opts.assemblies) > 0 {
				dir = opts.assemblies[0]
			}
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			p, err := migrate.CreateScript(dir, name, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	})
	return root
}

func runPhases(ctx context.Context, log *logrus.Logger, opts *options, cmd migrate.Command) error {
	m, closeFn, err := newMigrator(log, opts)
	if err != nil {
		return err
	}
	defer closeFn()
	return m.Run(ctx, cmd)
}

func newMigrator(log *logrus.Logger, opts *options) (*migrate.Migrator, func(), error) {
	cs := opts.connString
	if cs == "" && opts.connVarname != "" {
		v := viper.New()
		v.AutomaticEnv()
		cs = v.GetString(opts.connVarname)
	}
	if cs == "" {
		return nil, nil, errors.New("a connection string is required (--connection-string or --connection-varname)")
	}
	src, err := newSource(opts)
	if err != nil {
		return nil, nil, err
	}
	params, err := parseParams(opts.params)
	if err != nil {
		return nil, nil, err
	}
	mopts := []migrate.Option{
		migrate.WithLogger(log),
		migrate.WithParameters(params),
		migrate.WithSchemaOrder(opts.schemaOrder...),
	}
	if opts.acceptPrompts {
		mopts = append(mopts, migrate.WithAcceptPrompts())
	} else {
		mopts = append(mopts, migrate.WithInput(os.Stdin))
	}
	var out io.WriteCloser
	if opts.output != "" {
		out, err = os.Create(opts.output)
		if err != nil {
			return nil, nil, fmt.Errorf("create output file: %w", err)
		}
		mopts = append(mopts, migrate.WithOutput(out))
	}
	m, err := migrate.New(opts.dialect, cs, src, mopts...)
	if err != nil {
		if out != nil {
			out.Close()
		}
		return nil, nil, err
	}
	closeFn := func() {
		m.Close()
		if out != nil {
			out.Close()
		}
	}
	return m, closeFn, nil
}

func newSource(opts *options) (*migrate.Source, error) {
	dirs := opts.assemblies
	if len(dirs) == 0 || opts.entryOnly {
		dirs = []string{"."}
	}
	bundles := make([]fs.FS, 0, len(dirs))
	for _, d := range dirs {
		if _, err := os.Stat(d); err != nil {
			return nil, fmt.Errorf("script bundle %q: %w", d, err)
		}
		bundles = append(bundles, os.DirFS(d))
	}
	return migrate.NewSource(bundles...)
}

func parseParams(pairs []string) (migrate.Parameters, error) {
	params := migrate.Parameters{}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", p)
		}
		params[name] = value
	}
	return params, nil
}

// exitCode maps an error to its deterministic exit code.
func exitCode(err error) int {
	var (
		syntaxErr    *sqlparse.SyntaxError
		notCreate    *reconcile.NotACreateStatementError
		badType      *reconcile.UnsupportedObjectTypeError
		inspectErr   *inspect.Error
		dupColumn    *data.DuplicateColumnError
		badStructure *data.InvalidStructureError
		noTable      *data.TableNotFoundError
		noParam      *data.ParameterUnresolvedError
		badValue     *data.CoercionError
		cycle        *data.DependencyCycleError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.Is(err, migrate.ErrNotConfirmed):
		return exitNotConfirmed
	case errors.As(err, &syntaxErr):
		return exitScriptSyntax
	case errors.As(err, &notCreate), errors.As(err, &badType):
		return exitReconcile
	case errors.As(err, &dupColumn), errors.As(err, &badStructure), errors.As(err, &noTable),
		errors.As(err, &noParam), errors.As(err, &badValue), errors.As(err, &cycle):
		return exitData
	case errors.As(err, &inspectErr):
		return exitIntrospection
	case errors.Is(err, fs.ErrNotExist):
		return exitResourceNotFound
	}
	return exitGeneral
}
