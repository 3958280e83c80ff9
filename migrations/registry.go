package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	hooks "github.com/goliatone/go-hooks"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultSourceLabel = "go-hooks"

	embeddedRoot = "data/sql/migrations"
)

// Source is the migration set for one SQL dialect. Versions lists the
// migration names without the .up.sql/.down.sql suffix, in apply order.
type Source struct {
	Dialect  string
	Path     string
	FS       fs.FS
	Versions []string
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type config struct {
	label    string
	dialects []string
	root     fs.FS
}

type Option func(*config)

// WithSourceLabel names the migration source when the host runs several.
func WithSourceLabel(label string) Option {
	return func(c *config) {
		if label = strings.TrimSpace(label); label != "" {
			c.label = label
		}
	}
}

// WithDialects limits registration to the given dialects.
func WithDialects(dialects ...string) Option {
	return func(c *config) {
		normalized := normalizeDialects(dialects)
		if len(normalized) > 0 {
			c.dialects = normalized
		}
	}
}

// WithRoot reads migrations from fsys instead of the embedded schema. fsys
// may hold data/sql/migrations or be that directory itself.
func WithRoot(fsys fs.FS) Option {
	return func(c *config) {
		if fsys != nil {
			c.root = fsys
		}
	}
}

// Sources resolves the postgres and sqlite migration sets and checks that
// every up migration has a matching down migration.
func Sources(opts ...Option) ([]Source, error) {
	cfg := newConfig(opts)
	base, basePath, err := resolveRoot(cfg.root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite directory: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: path.Join(basePath, "sqlite"), FS: sqliteFS},
	}
	for i := range sources {
		versions, err := versions(sources[i].FS)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s %q: %w", sources[i].Dialect, sources[i].Path, err)
		}
		sources[i].Versions = versions
	}
	if err := sameVersions(sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// Register hands each selected dialect's migrations to fn, typically a
// go-persistence-bun client's RegisterSQLMigrations.
func Register(ctx context.Context, fn RegisterFunc, opts ...Option) ([]Source, error) {
	if fn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	cfg := newConfig(opts)
	sources, err := Sources(opts...)
	if err != nil {
		return nil, err
	}

	registered := make([]Source, 0, len(cfg.dialects))
	for _, source := range sources {
		if !contains(cfg.dialects, source.Dialect) {
			continue
		}
		if err := fn(ctx, source.Dialect, cfg.label, source.FS); err != nil {
			return registered, fmt.Errorf("migrations: register %s: %w", source.Dialect, err)
		}
		registered = append(registered, source)
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("migrations: no migrations for dialects %v", cfg.dialects)
	}
	return registered, nil
}

func newConfig(opts []Option) config {
	cfg := config{
		label:    DefaultSourceLabel,
		dialects: []string{DialectPostgres, DialectSQLite},
		root:     hooks.GetMigrationsFS(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func resolveRoot(root fs.FS) (fs.FS, string, error) {
	if info, err := fs.Stat(root, embeddedRoot); err == nil && info.IsDir() {
		sub, err := fs.Sub(root, embeddedRoot)
		if err != nil {
			return nil, "", fmt.Errorf("migrations: resolve %s: %w", embeddedRoot, err)
		}
		return sub, embeddedRoot, nil
	}
	if matches, _ := fs.Glob(root, "*.up.sql"); len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", embeddedRoot)
}

func versions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}
	out := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(fsys, version+".down.sql"); err != nil {
			return nil, fmt.Errorf("missing %s.down.sql", version)
		}
		out = append(out, version)
	}
	sort.Strings(out)
	return out, nil
}

func sameVersions(sources []Source) error {
	if len(sources) < 2 {
		return nil
	}
	want := strings.Join(sources[0].Versions, ",")
	for _, source := range sources[1:] {
		if got := strings.Join(source.Versions, ","); got != want {
			return fmt.Errorf("migrations: %s versions [%s] differ from %s [%s]",
				source.Dialect, got, sources[0].Dialect, want)
		}
	}
	return nil
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" || contains(out, value) {
			continue
		}
		out = append(out, value)
	}
	return out
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
