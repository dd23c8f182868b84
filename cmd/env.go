package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/sells-group/docforge/internal/calc"
	"github.com/sells-group/docforge/internal/config"
	"github.com/sells-group/docforge/internal/extract"
	"github.com/sells-group/docforge/internal/llm"
	"github.com/sells-group/docforge/internal/normalize"
	"github.com/sells-group/docforge/internal/pipeline"
	"github.com/sells-group/docforge/internal/recipe"
	"github.com/sells-group/docforge/internal/resilience"
	"github.com/sells-group/docforge/internal/store"
	"github.com/sells-group/docforge/pkg/render"
	"github.com/sells-group/docforge/pkg/sheets"
)

// serviceEnv holds the initialized collaborators and the session service
// used by the serve and extract commands.
type serviceEnv struct {
	Store   store.Store
	Service *pipeline.Service
	LLM     llm.Provider
	Recipes *recipe.Cache
	Catalog *recipe.Catalog
	Engine  *calc.Engine
	Lists   []extract.ListField
}

// Close releases resources held by the environment.
func (e *serviceEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initService validates the config for mode, opens the store, builds every
// client and returns the session service. Callers should defer env.Close().
func initService(ctx context.Context, mode string) (*serviceEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	provider, err := llm.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	catalog, recipes, err := initRecipes()
	if err != nil {
		return nil, err
	}

	engine, err := initEngine()
	if err != nil {
		return nil, err
	}

	sheet, err := initSheet(ctx, cfg.Sheets)
	if err != nil {
		return nil, err
	}

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	lists := listFields(cfg.Extract)
	svc := pipeline.New(pipeline.Deps{
		LLM:        provider,
		Render:     initRender(cfg),
		Store:      st,
		Sheet:      sheet,
		Recipes:    recipes,
		Catalog:    catalog,
		Engine:     engine,
		ListFields: lists,
	})

	zap.L().Info("service initialized",
		zap.String("llm", provider.Name()),
		zap.String("store", cfg.Store.Driver),
		zap.Int("template_sets", len(catalog.Sets)),
		zap.Bool("sheet", sheet != nil),
	)

	return &serviceEnv{
		Store:   st,
		Service: svc,
		LLM:     provider,
		Recipes: recipes,
		Catalog: catalog,
		Engine:  engine,
		Lists:   lists,
	}, nil
}

// initRecipes loads the template-set catalog, falling back to the built-in
// sets under the template root.
func initRecipes() (*recipe.Catalog, *recipe.Cache, error) {
	cache := recipe.NewCache(time.Duration(cfg.Recipes.CacheTTLMins) * time.Minute)
	if cfg.Recipes.CatalogPath == "" {
		return recipe.DefaultCatalog(cfg.Recipes.TemplateRoot), cache, nil
	}
	catalog, err := recipe.LoadCatalog(cfg.Recipes.CatalogPath)
	if err != nil {
		return nil, nil, err
	}
	return catalog, cache, nil
}

func initEngine() (*calc.Engine, error) {
	norm, err := normalize.New(normalize.Policy(cfg.Calc.SeparatorPolicy), cfg.Calc.CurrencyCodes)
	if err != nil {
		return nil, err
	}
	return calc.NewEngine(norm), nil
}

// initSheet returns the cached project spreadsheet, or nil when matching is
// not configured.
func initSheet(ctx context.Context, c config.SheetsConfig) (sheets.Source, error) {
	var src sheets.Source
	switch c.Source {
	case "":
		zap.L().Debug("sheets.source not set, spreadsheet matching disabled")
		return nil, nil
	case "google":
		var opts []option.ClientOption
		if c.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
		}
		g, err := sheets.NewGoogleSource(ctx, c.SpreadsheetID, c.Range, opts...)
		if err != nil {
			return nil, err
		}
		src = g
	case "xlsx":
		src = sheets.NewXLSXSource(c.XLSXPath, c.Sheet)
	default:
		return nil, eris.Errorf("unknown sheets source %q", c.Source)
	}
	return sheets.NewCached(src, time.Duration(c.CacheTTLMins)*time.Minute), nil
}

func initRender(c *config.Config) render.Client {
	opts := []render.Option{
		render.WithRetry(resilience.FromConfig(c.Retry)),
		render.WithBreaker(resilience.BreakerFromConfig("render", c.Retry)),
	}
	if c.Render.TimeoutSecs > 0 {
		opts = append(opts, render.WithHTTPClient(&http.Client{Timeout: secs(c.Render.TimeoutSecs)}))
	}
	return render.NewClient(c.Render.URL, opts...)
}

func listFields(c config.ExtractConfig) []extract.ListField {
	if len(c.ListFields) == 0 {
		return extract.DefaultListFields()
	}
	out := make([]extract.ListField, len(c.ListFields))
	for i, lf := range c.ListFields {
		out[i] = extract.ListField{Name: lf.Name, Columns: lf.Columns}
	}
	return out
}

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}
