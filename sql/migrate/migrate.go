// Copyright 2024-present The DbEx Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package migrate

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"dbex.io/dbex/data"
	"dbex.io/dbex/internal/sqlx"
	"dbex.io/dbex/sql/dialect"
	"dbex.io/dbex/sql/inspect"
	"dbex.io/dbex/sql/reconcile"
	"dbex.io/dbex/sql/schema"
	"dbex.io/dbex/sql/sqlparse"

	"github.com/sirupsen/logrus"
)

// A Command selects the phases of a migration session. Aggregates are
// bit-unions of the base commands; the session always runs the selected
// phases in the fixed order Drop, Create, Migrate, Schema, Reset, Data.
type Command uint

const (
	// CommandDrop drops the database. Destructive; requires confirmation.
	CommandDrop Command = 1 << iota
	// CommandCreate creates the database when it does not exist.
	CommandCreate
	// CommandMigrate applies the journalled migration scripts.
	CommandMigrate
	// CommandSchema reconciles the idempotent schema objects.
	CommandSchema
	// CommandReset deletes all data. Destructive; requires confirmation.
	CommandReset
	// CommandData loads the declarative data files.
	CommandData
)

// Aggregate commands.
const (
	CommandDeploy         = CommandMigrate | CommandSchema
	CommandDeployWithData = CommandDeploy | CommandData
	CommandAll            = CommandCreate | CommandDeployWithData
	CommandDropAndAll     = CommandDrop | CommandAll
	CommandResetAndAll    = CommandReset | CommandAll
	CommandResetAndData   = CommandReset | CommandData
)

// Has reports whether every bit of c is selected.
func (c Command) Has(sub Command) bool { return c&sub == sub }

// ErrNotConfirmed is returned when a destructive command runs without
// interactive confirmation or the accept-prompts flag.
var ErrNotConfirmed = errors.New("migrate: destructive action not confirmed")

// An ExecError reports a failed statement with its script name and
// 1-based command index within the script.
type ExecError struct {
	Script  string
	Command int
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("migrate: script %q: command %d: %v", e.Script, e.Command, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// A Migrator drives one migration session against a single database.
// It is not safe for concurrent use.
type Migrator struct {
	d          dialect.Dialect
	cs         string
	dbName     string
	source     *Source
	params     Parameters
	log        *logrus.Logger
	out        io.Writer // non-nil: render SQL instead of executing
	in         io.Reader // prompt input; nil means non-interactive
	promptW    io.Writer
	accept     bool
	schemaOrd  []string
	dataCfg    data.Config
	inspectCfg inspect.Config
	maxRetries int
	retryDelay time.Duration

	master *sql.DB
	target *sql.DB
	model  *inspect.Model
}

// An Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the session logger.
func WithLogger(l *logrus.Logger) Option { return func(m *Migrator) { m.log = l } }

// WithParameters merges the given runtime parameters into the session.
func WithParameters(p Parameters) Option {
	return func(m *Migrator) {
		for k, v := range p {
			m.params[k] = v
		}
	}
}

// WithOutput renders the session's SQL to w instead of executing it.
// Journalling is skipped; every script is rendered.
func WithOutput(w io.Writer) Option { return func(m *Migrator) { m.out = w } }

// WithInput enables interactive confirmation prompts reading from r.
func WithInput(r io.Reader) Option { return func(m *Migrator) { m.in = r } }

// WithAcceptPrompts bypasses the destructive-action confirmation.
func WithAcceptPrompts() Option { return func(m *Migrator) { m.accept = true } }

// WithSchemaOrder sets the explicit schema precedence for the Schema
// phase.
func WithSchemaOrder(schemas ...string) Option {
	return func(m *Migrator) { m.schemaOrd = schemas }
}

// WithDataConfig sets the data-load configuration.
func WithDataConfig(cfg data.Config) Option { return func(m *Migrator) { m.dataCfg = cfg } }

// WithInspectConfig sets the introspection naming conventions.
func WithInspectConfig(cfg inspect.Config) Option { return func(m *Migrator) { m.inspectCfg = cfg } }

// WithRetry sets the connection-initialization retry policy.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(m *Migrator) { m.maxRetries, m.retryDelay = attempts, delay }
}

// New returns a migration session for the registered dialect and
// connection string.
func New(dialectName, connString string, source *Source, opts ...Option) (*Migrator, error) {
	d, err := dialect.Lookup(dialectName)
	if err != nil {
		return nil, err
	}
	dbName, err := d.DatabaseName(connString)
	if err != nil {
		return nil, err
	}
	if dbName == "" {
		return nil, fmt.Errorf("migrate: connection string carries no database name")
	}
	m := &Migrator{
		d:          d,
		cs:         connString,
		dbName:     dbName,
		source:     source,
		params:     Parameters{},
		log:        logrus.StandardLogger(),
		promptW:    os.Stdout,
		dataCfg:    data.DefaultConfig(),
		inspectCfg: inspect.DefaultConfig(),
		maxRetries: 5,
		retryDelay: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(m)
	}
	if m.dataCfg.UserName == "" {
		if u, err := user.Current(); err == nil {
			m.dataCfg.UserName = u.Username
		}
	}
	if m.dataCfg.Now.IsZero() {
		m.dataCfg.Now = time.Now()
	}
	j := d.JournalIdent()
	m.params.setDefault(ParamDatabaseName, dbName)
	m.params.setDefault(ParamJournalSchema, j.Schema)
	m.params.setDefault(ParamJournalTable, j.Name)
	m.params.setDefault(ParamUserName, m.dataCfg.UserName)
	m.params.setDefault(ParamDateTimeNow, m.dataCfg.Now.UTC().Format(time.RFC3339))
	return m, nil
}

// Close releases the session's connections.
func (m *Migrator) Close() error {
	var err error
	for _, db := range []*sql.DB{m.master, m.target} {
		if db != nil {
			err = errors.Join(err, db.Close())
		}
	}
	m.master, m.target = nil, nil
	return err
}

// Run executes the selected phases in the fixed order. The first failed
// phase aborts the session; later phases are skipped.
func (m *Migrator) Run(ctx context.Context, cmd Command) error {
	if cmd == 0 {
		return fmt.Errorf("migrate: no command selected")
	}
	if err := m.confirm(cmd); err != nil {
		return err
	}
	phases := []struct {
		cmd  Command
		name string
		run  func(context.Context) error
	}{
		{CommandDrop, "drop", m.drop},
		{CommandCreate, "create", m.create},
		{CommandMigrate, "migrate", m.migrate},
		{CommandSchema, "schema", m.schema},
		{CommandReset, "reset", m.reset},
		{CommandData, "data", m.data},
	}
	for _, p := range phases {
		if !cmd.Has(p.cmd) {
			continue
		}
		start := time.Now()
		m.log.WithField("phase", p.name).Info("phase started")
		if err := p.run(ctx); err != nil {
			m.log.WithField("phase", p.name).WithError(err).Error("phase failed")
			return err
		}
		m.log.WithFields(logrus.Fields{"phase": p.name, "elapsed": time.Since(start).Round(time.Millisecond)}).Info("phase complete")
	}
	return nil
}

// Execute runs ad-hoc SQL statements against the target database, or
// renders them when output mode is on.
func (m *Migrator) Execute(ctx context.Context, statements ...string) error {
	db, err := m.targetDBUnlessOutput(ctx)
	if err != nil {
		return err
	}
	for i, s := range statements {
		name := fmt.Sprintf("execute-%d", i+1)
		if err := m.execBatch(ctx, db, name, m.params.Expand(s)); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) confirm(cmd Command) error {
	if cmd&(CommandDrop|CommandReset) == 0 || m.accept || m.out != nil {
		return nil
	}
	if m.in == nil {
		return ErrNotConfirmed
	}
	var actions []string
	if cmd.Has(CommandDrop) {
		actions = append(actions, "DROP database "+m.dbName)
	}
	if cmd.Has(CommandReset) {
		actions = append(actions, "RESET (delete all data in) database "+m.dbName)
	}
	fmt.Fprintf(m.promptW, "About to %s. Continue? [y/N] ", strings.Join(actions, " and "))
	line, err := bufio.NewReader(m.in).ReadString('\n')
	if err != nil && line == "" {
		return ErrNotConfirmed
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	}
	return ErrNotConfirmed
}

func (m *Migrator) drop(ctx context.Context) error {
	db, err := m.masterDB(ctx)
	if err != nil {
		return err
	}
	return m.execBatch(ctx, db, "database-drop", m.params.Expand(m.d.DatabaseDropSQL(m.dbName)))
}

func (m *Migrator) create(ctx context.Context) error {
	db, err := m.masterDB(ctx)
	if err != nil {
		return err
	}
	if m.out == nil {
		exists, err := m.databaseExists(ctx, db)
		if err != nil {
			return err
		}
		if exists {
			m.log.WithField("database", m.dbName).Info("database already exists")
			return nil
		}
	}
	return m.execBatch(ctx, db, "database-create", m.params.Expand(m.d.DatabaseCreateSQL(m.dbName)))
}

func (m *Migrator) databaseExists(ctx context.Context, db *sql.DB) (bool, error) {
	rows, err := db.QueryContext(ctx, m.d.DatabaseExistsSQL(m.dbName))
	if err != nil {
		return false, fmt.Errorf("migrate: check database %q: %w", m.dbName, err)
	}
	defer rows.Close()
	var n int64
	if err := sqlx.ScanOne(rows, &n); err != nil {
		return false, fmt.Errorf("migrate: check database %q: %w", m.dbName, err)
	}
	return n > 0, nil
}

func (m *Migrator) migrate(ctx context.Context) error {
	executed := make(map[string]bool)
	var j *Journal
	if m.out == nil {
		db, err := m.targetDB(ctx)
		if err != nil {
			return err
		}
		j = NewJournal(m.d, db, m.journalIdent())
		if err := j.EnsureExists(ctx); err != nil {
			return err
		}
		if executed, err = j.ExecutedScripts(ctx); err != nil {
			return err
		}
	}
	groups := []struct {
		kind      ScriptKind
		runAlways bool
	}{
		{KindPreDeploy, true},
		{KindMigrate, false},
		{KindPostDatabaseCreate, false},
		{KindPostDeploy, true},
	}
	for _, g := range groups {
		for _, s := range m.source.Scripts(g.kind) {
			if !g.runAlways && executed[s.Name] {
				m.log.WithField("script", s.Name).Debug("already executed; skipped")
				continue
			}
			if err := m.execScript(ctx, s); err != nil {
				return err
			}
			if j != nil && !executed[s.Name] {
				if err := j.Audit(ctx, s.Name, time.Now()); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *Migrator) schema(ctx context.Context) error {
	scripts := m.source.Scripts(KindSchema)
	if len(scripts) == 0 {
		m.log.Info("no schema scripts found")
		return nil
	}
	rs := make([]reconcile.Script, 0, len(scripts))
	for _, s := range scripts {
		body, err := s.ReadAll()
		if err != nil {
			return err
		}
		rs = append(rs, reconcile.Script{Name: s.Name, Body: m.params.Expand(string(body))})
	}
	plan, err := reconcile.New(m.d, m.schemaOrd, rs)
	if err != nil {
		return err
	}
	db, err := m.targetDBUnlessOutput(ctx)
	if err != nil {
		return err
	}
	for _, drop := range plan.Drops {
		if err := m.execBatch(ctx, db, "schema-drop", drop); err != nil {
			return err
		}
	}
	for _, o := range plan.Creates {
		if err := m.execBatch(ctx, db, o.Script.Name, o.Script.Body); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) reset(ctx context.Context) error {
	model, err := m.inspectModel(ctx)
	if err != nil {
		return err
	}
	j := m.journalIdent()
	var (
		nodes  []string
		byName = make(map[string]*schema.Table)
		deps   = make(map[string][]string)
	)
	include := func(t *schema.Table) bool {
		if t == nil || t.IsView || !m.d.ResetFilter(t.Schema, t.Name) {
			return false
		}
		return !strings.EqualFold(t.Schema, j.Schema) || !strings.EqualFold(t.Name, j.Name)
	}
	for _, t := range model.Tables {
		if include(t) {
			key := t.QualifiedName()
			nodes = append(nodes, key)
			byName[key] = t
		}
	}
	for _, key := range nodes {
		for _, c := range byName[key].Columns {
			if c.ForeignTable == "" {
				continue
			}
			if ft, ok := model.Table(c.ForeignSchema, c.ForeignTable); ok && include(ft) && ft.QualifiedName() != key {
				deps[key] = append(deps[key], ft.QualifiedName())
			}
		}
	}
	sorted, err := sqlx.SortTopological(nodes, deps)
	if err != nil {
		return fmt.Errorf("migrate: reset ordering: %w", err)
	}
	// Referencing rows go first: delete in reverse dependency order.
	stmts := make([]string, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		t := byName[sorted[i]]
		stmts = append(stmts, "DELETE FROM "+m.qualified(t.Schema, t.Name))
	}
	if m.out != nil {
		return m.write("data-reset", stmts)
	}
	db, err := m.targetDB(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin reset transaction: %w", err)
	}
	for i, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			tx.Rollback()
			return &ExecError{Script: "data-reset", Command: i + 1, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit reset transaction: %w", err)
	}
	m.log.WithField("tables", len(stmts)).Info("data reset complete")
	return nil
}

func (m *Migrator) data(ctx context.Context) error {
	scripts := m.source.Scripts(KindData)
	if len(scripts) == 0 {
		m.log.Info("no data files found")
		return nil
	}
	model, err := m.inspectModel(ctx)
	if err != nil {
		return err
	}
	loader := data.NewLoader(m.d, model, m.dataCfg)
	db, err := m.targetDBUnlessOutput(ctx)
	if err != nil {
		return err
	}
	for _, s := range scripts {
		body, err := s.ReadAll()
		if err != nil {
			return err
		}
		// Plain SQL data scripts run as-is, ahead of the parsed files.
		if strings.HasSuffix(strings.ToLower(s.Name), ".sql") {
			if err := m.execBatch(ctx, db, s.Name, m.params.Expand(string(body))); err != nil {
				return err
			}
			continue
		}
		if err := loader.Parse(s.Name, body); err != nil {
			return err
		}
	}
	stmts, err := loader.SQL()
	if err != nil {
		return err
	}
	for _, s := range stmts {
		name := fmt.Sprintf("data:%s", s.Table)
		if m.out != nil {
			if err := m.write(name, []string{s.SQL}); err != nil {
				return err
			}
			continue
		}
		if _, err := db.ExecContext(ctx, s.SQL); err != nil {
			return &ExecError{Script: name, Command: 1, Err: err}
		}
	}
	return nil
}

// execScript reads, expands and executes one source script.
func (m *Migrator) execScript(ctx context.Context, s *Script) error {
	body, err := s.ReadAll()
	if err != nil {
		return err
	}
	db, err := m.targetDBUnlessOutput(ctx)
	if err != nil {
		return err
	}
	return m.execBatch(ctx, db, s.Name, m.params.Expand(string(body)))
}

// execBatch splits a script body into commands and executes them in
// source order, or renders them when output mode is on.
func (m *Migrator) execBatch(ctx context.Context, db schema.ExecQuerier, name, body string) error {
	stmts, err := sqlparse.Split(body, m.d.Delimiter(), m.d.Quoting())
	if err != nil {
		return fmt.Errorf("migrate: script %q: %w", name, err)
	}
	if m.out != nil {
		return m.write(name, stmts)
	}
	m.log.WithFields(logrus.Fields{"script": name, "commands": len(stmts)}).Info("executing")
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("migrate: script %q cancelled: %w", name, ctx.Err())
			}
			return &ExecError{Script: name, Command: i + 1, Err: err}
		}
	}
	return nil
}

func (m *Migrator) write(name string, stmts []string) error {
	sep := ";\n"
	if m.d.Delimiter() == sqlparse.DelimiterGo {
		sep = "\nGO\n"
	}
	if _, err := fmt.Fprintf(m.out, "-- %s\n", name); err != nil {
		return fmt.Errorf("migrate: write output: %w", err)
	}
	for _, s := range stmts {
		if _, err := fmt.Fprint(m.out, strings.TrimRight(s, "\n"), sep); err != nil {
			return fmt.Errorf("migrate: write output: %w", err)
		}
	}
	return nil
}

func (m *Migrator) journalIdent() dialect.Ident {
	j := m.d.JournalIdent()
	if s, ok := m.params[ParamJournalSchema]; ok && s != "" {
		j.Schema = s
	}
	if t, ok := m.params[ParamJournalTable]; ok && t != "" {
		j.Name = t
	}
	return j
}

func (m *Migrator) inspectModel(ctx context.Context) (*inspect.Model, error) {
	if m.model != nil {
		return m.model, nil
	}
	db, err := m.targetDB(ctx)
	if err != nil {
		return nil, err
	}
	model, err := inspect.New(m.d, db, m.inspectCfg).Inspect(ctx)
	if err != nil {
		return nil, err
	}
	m.model = model
	return model, nil
}

func (m *Migrator) masterDB(ctx context.Context) (*sql.DB, error) {
	if m.out != nil {
		return nil, nil
	}
	if m.master != nil {
		return m.master, nil
	}
	dsn, err := m.d.WithDatabase(m.cs, m.d.AdminDatabase())
	if err != nil {
		return nil, err
	}
	db, err := m.open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	m.master = db
	return db, nil
}

func (m *Migrator) targetDB(ctx context.Context) (*sql.DB, error) {
	if m.target != nil {
		return m.target, nil
	}
	db, err := m.open(ctx, m.cs)
	if err != nil {
		return nil, err
	}
	m.target = db
	return db, nil
}

func (m *Migrator) targetDBUnlessOutput(ctx context.Context) (*sql.DB, error) {
	if m.out != nil {
		return nil, nil
	}
	return m.targetDB(ctx)
}

// open dials a connection, retrying transient initialization failures.
func (m *Migrator) open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(m.d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: open connection: %w", err)
	}
	for attempt := 1; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if attempt >= m.maxRetries || ctx.Err() != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: connect: %w", err)
		}
		m.log.WithError(err).Warnf("connection attempt %d of %d failed; retrying", attempt, m.maxRetries)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(m.retryDelay):
		}
	}
}

func (m *Migrator) qualified(schemaName, name string) string {
	if schemaName == "" {
		return m.d.QuoteIdent(name)
	}
	return m.d.QuoteIdent(schemaName) + "." + m.d.QuoteIdent(name)
}

// CreateScript scaffolds a new timestamped migration script under the
// directory's Migrations folder and returns its path.
func CreateScript(dir, name string, now time.Time) (string, error) {
	if name == "" {
		name = "migration"
	}
	fn := fmt.Sprintf("%s-%s.sql", now.Format("20060102-150405"), name)
	p := filepath.Join(dir, "Migrations", fn)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("migrate: scaffold script: %w", err)
	}
	body := fmt.Sprintf("-- Migration script %s.\n-- Wrap the statements in a transaction where the engine allows it.\n", fn)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("migrate: scaffold script: %w", err)
	}
	return p, nil
}
