package main

import (
	"context"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mural/mural-api/internal/config"
	"github.com/mural/mural-api/internal/domain/image"
	"github.com/mural/mural-api/internal/middleware"
	"github.com/mural/mural-api/internal/pkg/database"
	"github.com/mural/mural-api/internal/pkg/imaging"
	"github.com/mural/mural-api/internal/pkg/jwt"
	"github.com/mural/mural-api/internal/pkg/logger"
	"github.com/mural/mural-api/internal/pkg/realtime"
	"github.com/mural/mural-api/internal/pkg/response"
	"github.com/mural/mural-api/internal/pkg/storage"
)

// catalogMount binds a catalog handler to its URL prefix
type catalogMount struct {
	Path    string
	Handler *image.Handler
	Events  http.Handler
}

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("storage", cfg.StorageDriver).
		Msg("Starting Mural API")

	if len(cfg.AdminEmails) == 0 {
		log.Warn().Msg("ADMIN_EMAILS is empty, every write will be rejected")
	}

	ctx := context.Background()

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL, database.DefaultPool)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redisClient, err := database.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	catalogs := []image.Catalog{
		image.MuralCatalog(cfg.MuralBucket, cfg.MaxFileSize, cfg.CatalogQuota),
		image.FoodCatalog(cfg.FoodBucket, cfg.MaxFileSize, cfg.CatalogQuota),
	}

	if err := database.EnsureSchema(ctx, db, catalogTables(catalogs)); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare database schema")
	}

	// ---------- Shared services ----------
	hub := realtime.NewHub(redisClient, cfg.AllowedOrigins)
	go hub.Run()
	defer hub.Shutdown()

	prober := imaging.NewProber()
	jwtService := jwt.NewService(cfg.IdentitySecret, cfg.IdentityIssuer)
	requireIdentity := middleware.RequireIdentity(jwtService, middleware.NewAllowlist(cfg.AdminEmails))

	// ---------- Catalogs ----------
	paths := map[string]string{
		"mural": "/api/images",
		"food":  "/api/food-images",
	}

	var mounts []catalogMount
	for _, catalog := range catalogs {
		st, err := storage.New(ctx, cfg.StorageConfig(), catalog.Bucket)
		if err != nil {
			log.Fatal().Err(err).Str("catalog", catalog.Name).Msg("Failed to create storage client")
		}
		if err := storage.EnsureBucket(ctx, st); err != nil {
			log.Warn().Err(err).Str("bucket", catalog.Bucket).Msg("Could not ensure bucket exists")
		}

		svc := image.NewService(catalog, image.NewRepository(db, catalog), st, prober)
		svc.SetEventPublisher(hub)
		if redisClient != nil {
			svc.SetListCache(image.NewRedisListCache(redisClient, catalog.Name, cfg.ListCacheTTL))
		}

		mounts = append(mounts, catalogMount{
			Path:    paths[catalog.Name],
			Handler: image.NewHandler(svc),
			Events:  hub.Handler(catalog.Name),
		})
	}

	// ---------- Router ----------
	r := newRouter(cfg, mounts, requireIdentity)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute, // 50MB uploads on slow links
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func newRouter(cfg *config.Config, mounts []catalogMount, requireIdentity func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{
			"status": "ok",
		})
	})
	r.Handle("/debug/vars", expvar.Handler())

	// Local driver: blobs are served by this process
	if cfg.StorageDriver == "local" && strings.HasPrefix(cfg.LocalStorageURL, "/") {
		fs := http.StripPrefix(cfg.LocalStorageURL, http.FileServer(http.Dir(cfg.LocalStoragePath)))
		r.Handle(cfg.LocalStorageURL+"/*", fs)
	}

	for _, m := range mounts {
		r.Mount(m.Path, m.Handler.Routes(requireIdentity, m.Events))
	}

	return r
}

func catalogTables(catalogs []image.Catalog) []database.CatalogTable {
	tables := make([]database.CatalogTable, len(catalogs))
	for i, c := range catalogs {
		tables[i] = database.CatalogTable{Catalog: c.Name, Table: c.Table}
	}
	return tables
}
