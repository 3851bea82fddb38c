package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"
	"strings"

	ingest "github.com/goliatone/go-webhook-ingest"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const (
	defaultLabel = "go-webhook-ingest"
	treeRoot     = "data/sql/migrations"
	upSuffix     = ".up.sql"
	downSuffix   = ".down.sql"
)

// Tree is the migration directory of one dialect. Postgres files live at the
// root; the sqlite variants in a sqlite/ subdirectory.
type Tree struct {
	Dialect  string
	Path     string
	FS       fs.FS
	Versions []string
}

type Registration struct {
	Label    string
	Dialects []string
	Trees    []Tree
}

type RegisterFunc func(ctx context.Context, dialect string, label string, fsys fs.FS) error

type Option func(*Registration)

func WithLabel(label string) Option {
	return func(r *Registration) {
		if label = strings.TrimSpace(label); label != "" {
			r.Label = label
		}
	}
}

// ForDialects limits registration to the named dialects.
func ForDialects(dialects ...string) Option {
	return func(r *Registration) {
		if selected := normalizeDialects(dialects); len(selected) > 0 {
			r.Dialects = selected
		}
	}
}

// WithTrees replaces the embedded trees, mostly for tests.
func WithTrees(trees ...Tree) Option {
	return func(r *Registration) {
		kept := make([]Tree, 0, len(trees))
		for _, tree := range trees {
			tree.Dialect = strings.ToLower(strings.TrimSpace(tree.Dialect))
			if tree.Dialect == "" || tree.FS == nil {
				continue
			}
			kept = append(kept, tree)
		}
		if len(kept) > 0 {
			r.Trees = kept
		}
	}
}

// Trees discovers the postgres and sqlite trees under root, or under the
// embedded migrations when root is nil. Every up migration must have a
// matching down migration.
func Trees(root fs.FS) ([]Tree, error) {
	if root == nil {
		root = ingest.GetMigrationsFS()
	}
	base, basePath, err := locateRoot(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: sqlite tree: %w", err)
	}

	trees := []Tree{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: path.Join(basePath, "sqlite"), FS: sqliteFS},
	}
	for index := range trees {
		versions, err := pairedVersions(trees[index])
		if err != nil {
			return nil, err
		}
		trees[index].Versions = versions
	}
	return trees, nil
}

// Register hands each selected dialect tree to registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		Label:    defaultLabel,
		Dialects: []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	if len(reg.Trees) == 0 {
		trees, err := Trees(nil)
		if err != nil {
			return reg, err
		}
		reg.Trees = trees
	}

	registered := 0
	for _, tree := range reg.Trees {
		if !slices.Contains(reg.Dialects, tree.Dialect) {
			continue
		}
		if err := registerFn(ctx, tree.Dialect, reg.Label, tree.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", tree.Dialect, tree.Path, err)
		}
		registered++
	}
	if registered == 0 {
		return reg, fmt.Errorf("migrations: no tree for dialects %v", reg.Dialects)
	}
	return reg, nil
}

func locateRoot(root fs.FS) (fs.FS, string, error) {
	if _, err := fs.Stat(root, treeRoot); err == nil {
		sub, err := fs.Sub(root, treeRoot)
		if err != nil {
			return nil, "", fmt.Errorf("migrations: %s: %w", treeRoot, err)
		}
		return sub, treeRoot, nil
	}
	if matches, _ := fs.Glob(root, "*"+upSuffix); len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", treeRoot)
}

func pairedVersions(tree Tree) ([]string, error) {
	ups, err := fs.Glob(tree.FS, "*"+upSuffix)
	if err != nil {
		return nil, fmt.Errorf("migrations: list %s: %w", tree.Dialect, err)
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s tree %q has no %s files", tree.Dialect, tree.Path, upSuffix)
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, upSuffix)
		if _, err := fs.Stat(tree.FS, version+downSuffix); err != nil {
			return nil, fmt.Errorf("migrations: %s migration %s has no down file", tree.Dialect, version)
		}
		versions = append(versions, version)
	}
	sort.Strings(versions)
	return versions, nil
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" && !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	return out
}
