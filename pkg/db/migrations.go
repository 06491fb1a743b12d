package db

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
)

const migrationsLogPrefix = "db:migrations"

// LoadMigrationFiles returns the contents of the .sql files in dir, ordered
// by file name.
func LoadMigrationFiles(dir string) ([]string, error) {
	out, err := LoadMigrations(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load migrations from %s: %w", migrationsLogPrefix, dir, err)
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

// LoadMigrations is LoadMigrationFiles over an fs.FS. Directories and
// non-.sql files are skipped; blank files are dropped.
func LoadMigrations(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		out = append(out, string(data))
	}
	return out, nil
}
