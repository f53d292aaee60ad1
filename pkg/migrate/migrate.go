// Package migrate runs goose SQL migrations. The migrations shipped with the
// repo are compiled into every binary, so the API and workers can migrate
// without the source tree on disk.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/towndrop-backend/pkg/config"
	"github.com/angelmondragon/towndrop-backend/pkg/db"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
)

// DefaultDir is where new migrations are written, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// goose keeps its dialect and base FS in package globals.
var gooseMu sync.Mutex

// Source is a set of migration files: the embedded copy or a directory on disk.
type Source struct {
	fsys fs.FS
	dir  string
	name string
}

func Embedded() Source {
	return Source{fsys: embedded, dir: "migrations", name: "embedded"}
}

func Dir(path string) Source {
	return Source{fsys: os.DirFS(path), dir: ".", name: path}
}

func (s Source) String() string { return s.name }

func withGoose(src Source, fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(src.fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return fn()
}

// Run executes a goose command such as up, down, status or redo.
func Run(ctx context.Context, sqlDB *sql.DB, src Source, command string, args ...string) error {
	if sqlDB == nil {
		return fmt.Errorf("db is required")
	}
	return withGoose(src, func() error {
		if err := goose.RunContext(ctx, command, sqlDB, src.dir, args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	})
}

// MigrateToVersion moves up or down until the database sits at target.
func MigrateToVersion(ctx context.Context, sqlDB *sql.DB, src Source, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}

	return withGoose(src, func() error {
		current, err := goose.GetDBVersionContext(ctx, sqlDB)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		switch {
		case current < version:
			err = goose.UpToContext(ctx, sqlDB, src.dir, version)
		case current > version:
			err = goose.DownToContext(ctx, sqlDB, src.dir, version)
		}
		if err != nil {
			return fmt.Errorf("goose %d -> %d: %w", current, version, err)
		}
		return nil
	})
}

// MaybeRunDev applies the embedded migrations at startup when running in dev
// with the auto-migrate flag on.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	src := Embedded()
	ctx = logg.WithField(ctx, "source", src.String())
	logg.Info(ctx, "migrate.autorun.start")
	if err := Run(ctx, sqlDB, src, "up"); err != nil {
		return err
	}
	logg.Info(ctx, "migrate.autorun.complete")
	return nil
}
