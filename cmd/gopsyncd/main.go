package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"

	"cpim-backend/lib/configutil"
	"cpim-backend/lib/scrapers/gop"
	"cpim-backend/lib/serviceutil"
	"cpim-backend/lib/telemetry"
	"cpim-backend/services/gopsync"
	"cpim-backend/services/gopsync/db"

	"dario.cat/mergo"
	"github.com/rs/cors"
	_ "modernc.org/sqlite"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	telemetry.InitSlog(*verbose)
	tel, err := telemetry.SetupFromEnv(ctx, "gopsyncd")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	defer tel.Shutdown(ctx)
	telemetry.InstrumentPerfStats(ctx)

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Portal.Username == "" || cfg.Portal.Password == "" {
		serviceutil.Fatal("read config", fmt.Errorf("portal credentials are not configured"))
	}

	database, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", cfg.Database.File))
	if err != nil {
		serviceutil.Fatal("open database", err)
	}
	_, err = database.ExecContext(ctx, db.Schema)
	if err != nil {
		serviceutil.Fatal("ensure schema", err)
	}

	store := gopsync.NewStore(database)
	err = store.ResolveCapabilities(ctx)
	if err != nil {
		serviceutil.Fatal("resolve store capabilities", err)
	}

	selectors := gop.DefaultSelectors()
	err = mergo.Merge(&selectors, cfg.Portal.Selectors, mergo.WithOverride)
	if err != nil {
		serviceutil.Fatal("merge selector overrides", err)
	}

	service := gopsync.NewService(database, store, func(ctx context.Context) (gopsync.Portal, error) {
		return gop.NewClient(ctx, gop.Options{
			BaseUrl:        cfg.Portal.BaseUrl,
			Username:       cfg.Portal.Username,
			Password:       cfg.Portal.Password,
			Selectors:      selectors,
			DiagnosticsDir: cfg.Portal.DiagnosticsDir,
		})
	})

	runs := gopsync.NewMemoryRunStore()
	runner := gopsync.NewRunner(service, runs)
	runner.Start(ctx)

	mux := http.NewServeMux()
	handler := gopsync.NewHTTPHandler(runner, runs)
	mux.Handle("/gop/sync/runs", handler)
	mux.Handle("/gop/sync/runs/", handler)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	}).Handler(mux)

	port := cfg.Port
	if port == 0 {
		port = 8000
	}
	go serviceutil.StartHttpServer(port, corsHandler)
	<-ctx.Done()
}
