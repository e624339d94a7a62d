// Package application opens the stores named by the configuration and
// wires them into a core.Service. Both binaries start here.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/intake/internal/classify"
	"github.com/JonMunkholm/intake/internal/config"
	"github.com/JonMunkholm/intake/internal/core"
	"github.com/JonMunkholm/intake/internal/store/mongo"
	"github.com/JonMunkholm/intake/internal/store/postgres"
)

// Pinger is a dependency with a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// App holds the open stores and the service built on them.
type App struct {
	Config  *config.Config
	Service *core.Service
	Store   *postgres.Store

	// Checks names every dependency a health endpoint should ping.
	Checks map[string]Pinger

	pool    *pgxpool.Pool
	catalog *mongo.Catalog
}

// Open connects to Postgres, and to Mongo when it holds the catalog,
// migrates and seeds as configured, and builds the service.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	app, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := app.open(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// OpenStore connects to Postgres only. Commands that manage the schema or
// taxonomy need nothing more.
func OpenStore(ctx context.Context, cfg *config.Config) (*App, error) {
	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	store := postgres.New(pool)
	return &App{
		Config: cfg,
		Store:  store,
		Checks: map[string]Pinger{config.BackendPostgres: store},
		pool:   pool,
	}, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.Config
	if cfg.Database.AutoMigrate {
		if err := a.Store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	if err := a.seedTaxonomy(ctx); err != nil {
		return err
	}

	canonical, err := a.openCatalog(ctx)
	if err != nil {
		return err
	}

	classifier, err := LoadClassifier(cfg.Classifier.RulesPath)
	if err != nil {
		return err
	}

	svc, err := core.NewService(core.Deps{
		Staging:    a.Store,
		Canonical:  canonical,
		Taxonomy:   a.Store,
		Audit:      a.Store,
		Classifier: classifier,
	}, cfg)
	if err != nil {
		return err
	}
	a.Service = svc
	return nil
}

func (a *App) openCatalog(ctx context.Context) (core.CanonicalStore, error) {
	switch a.Config.Canonical.Backend {
	case config.BackendMongo:
		cat, err := mongo.Connect(ctx, a.Config.Canonical)
		if err != nil {
			return nil, err
		}
		a.catalog = cat
		a.Checks[config.BackendMongo] = cat
		if err := cat.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		slog.Info("canonical catalog on mongo",
			"database", a.Config.Canonical.MongoDatabase,
			"collection", a.Config.Canonical.MongoCollection,
		)
		return cat, nil
	default:
		return a.Store, nil
	}
}

// seedTaxonomy loads the configured seed file, or the built-in categories
// when the table is still empty.
func (a *App) seedTaxonomy(ctx context.Context) error {
	path := a.Config.Classifier.TaxonomySeedPath
	if path == "" {
		existing, err := a.Store.ListCategories(ctx)
		if err != nil {
			return fmt.Errorf("read taxonomy: %w", err)
		}
		if len(existing) > 0 {
			return nil
		}
	}

	n, err := SeedTaxonomy(ctx, a.Store, path)
	if err != nil {
		return err
	}
	slog.Info("taxonomy seeded", "path", path, "subcategories", n)
	return nil
}

// TaxonomySeeder writes categories.
type TaxonomySeeder interface {
	SeedTaxonomy(ctx context.Context, cats []classify.Category) (int, error)
}

// SeedTaxonomy writes the categories in path, or the built-in ones when
// path is empty.
func SeedTaxonomy(ctx context.Context, seeder TaxonomySeeder, path string) (int, error) {
	cats, err := LoadCategories(path)
	if err != nil {
		return 0, err
	}
	n, err := seeder.SeedTaxonomy(ctx, cats)
	if err != nil {
		return 0, fmt.Errorf("seed taxonomy: %w", err)
	}
	return n, nil
}

// LoadCategories reads a taxonomy seed file. An empty path gives the
// built-in categories.
func LoadCategories(path string) ([]classify.Category, error) {
	if path == "" {
		return classify.DefaultCategories(), nil
	}
	cats, err := classify.LoadTaxonomyFile(path)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy seed: %w", err)
	}
	return cats, nil
}

// LoadClassifier builds a classifier from a rules file, or from the
// built-in rules when path is empty.
func LoadClassifier(path string) (*classify.Classifier, error) {
	if path == "" {
		return classify.New(classify.DefaultRules()), nil
	}
	rules, err := classify.LoadRulesFile(path)
	if err != nil {
		return nil, fmt.Errorf("load classifier rules: %w", err)
	}
	return classify.New(rules), nil
}

// Close releases every connection. It is safe to call on a partly opened
// App.
func (a *App) Close() error {
	var errs []error
	if a.catalog != nil {
		errs = append(errs, a.catalog.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
