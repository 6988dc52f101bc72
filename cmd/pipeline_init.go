package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wildfire-cli/internal/db"
	"github.com/sells-group/wildfire-cli/internal/engine"
	"github.com/sells-group/wildfire-cli/internal/enrich"
	"github.com/sells-group/wildfire-cli/internal/fetcher"
	"github.com/sells-group/wildfire-cli/internal/present"
	"github.com/sells-group/wildfire-cli/internal/store"
	"github.com/sells-group/wildfire-cli/internal/workspace"
)

// pipelineEnv holds the workspace, run store, and pipeline needed by the
// run command.
type pipelineEnv struct {
	Workspace *workspace.Store
	Store     store.Store
	Engine    *engine.Local
	Resolver  *fetcher.Resolver
	Pipeline  *enrich.Pipeline
	Manifest  *present.Manifest
	pgPool    *pgxpool.Pool // may be nil
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.pgPool != nil {
		pe.pgPool.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
	if pe.Workspace != nil {
		_ = pe.Workspace.Close()
	}
}

// outputPath resolves name against the export directory unless it is absolute.
func outputPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.Export.Dir, name)
}

// initWorkspace opens the workspace database.
func initWorkspace(ctx context.Context) (*workspace.Store, error) {
	ws, err := workspace.Open(ctx, cfg.WorkspaceDir(), cfg.Workspace.Name)
	if err != nil {
		return nil, eris.Wrap(err, "open workspace")
	}
	return ws, nil
}

// initPipeline validates the configuration, then opens the workspace and
// run store and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	formats, err := cfg.ExportFormats()
	if err != nil {
		return nil, err
	}
	op, err := engine.ParseJoinOperation(cfg.Join.Operation)
	if err != nil {
		return nil, err
	}

	env := &pipelineEnv{}
	if env.Workspace, err = initWorkspace(ctx); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Store = st
	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env.Engine = engine.NewLocal(env.Workspace,
		engine.WithSegments(cfg.Buffer.Segments),
		engine.WithConcurrency(cfg.Workspace.Concurrency),
	)

	env.Manifest = present.NewManifest(outputPath(cfg.Present.Manifest), "")
	presenters := present.Multi{present.Log{}, env.Manifest}

	// PostGIS publishing is optional.
	if cfg.Present.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.Present.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
		if err != nil {
			env.Close()
			return nil, eris.Wrap(err, "connect presentation database")
		}
		env.pgPool = pool
		pg := present.NewPostgres(pool, cfg.Present.Schema, env.Workspace)
		if err := pg.Migrate(ctx); err != nil {
			env.Close()
			return nil, err
		}
		presenters = append(presenters, pg)
		zap.L().Info("postgis layer publishing enabled", zap.String("schema", cfg.Present.Schema))
	}

	env.Resolver = fetcher.NewResolver(cfg.Fetch.CacheDir,
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Fetch.Retries,
		}),
		fetcher.NewFTPFetcher(fetcher.FTPOptions{}),
	)

	joiner := &enrich.Joiner{
		Engine:          env.Engine,
		Operation:       op,
		CategoryField:   cfg.Join.CategoryField,
		DefaultCategory: cfg.Join.DefaultCategory,
	}
	sink := &enrich.Sink{
		Engine:    env.Engine,
		Presenter: presenters,
		OutputDir: cfg.Export.Dir,
		Formats:   formats,
		LayerFile: cfg.Present.LayerFile,
		Workspace: env.Workspace.Path(),
	}
	env.Pipeline = enrich.New(env.Engine, st, joiner, sink)

	return env, nil
}

// pipelineParams builds run parameters for inputs already loaded into the
// workspace.
func pipelineParams(loaded enrich.Params) enrich.Params {
	loaded.Predicate = cfg.Region.Predicate
	loaded.DistancesKM = cfg.Buffer.DistancesKM
	loaded.ViewName = cfg.Region.View
	loaded.Prefix = cfg.Buffer.Prefix
	return loaded
}
