package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vendica/vendica-platform/contracts"
	creditshandler "github.com/vendica/vendica-platform/domains/credits/be/handler"
	creditsrepo "github.com/vendica/vendica-platform/domains/credits/be/repo"
	creditsservice "github.com/vendica/vendica-platform/domains/credits/be/service"
	storeshandler "github.com/vendica/vendica-platform/domains/stores/be/handler"
	storesprovisioning "github.com/vendica/vendica-platform/domains/stores/be/provisioning"
	storesrepo "github.com/vendica/vendica-platform/domains/stores/be/repo"
	storesservice "github.com/vendica/vendica-platform/domains/stores/be/service"
	platformlogging "github.com/vendica/vendica-platform/platform/go/logging"
	platformmiddleware "github.com/vendica/vendica-platform/platform/go/middleware"
	"github.com/vendica/vendica-platform/platform/go/persistence"
	"github.com/vendica/vendica-platform/platform/go/resolver"
	"github.com/vendica/vendica-platform/platform/go/router"
	"github.com/vendica/vendica-platform/platform/go/vault"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	AuthProvider    string        `env:"AUTH_PROVIDER" envDefault:"firebase"`
	VaultKey        string        `env:"VAULT_KEY,required"`
	MaxStores       int           `env:"MAX_STORES_PER_ACCOUNT" envDefault:"3"`
	PlatformDomain  string        `env:"PLATFORM_DOMAIN" envDefault:"vendica.shop"`
	DomainCacheTTL  time.Duration `env:"DOMAIN_CACHE_TTL" envDefault:"5m"`
	SkipHosts       []string      `env:"RESOLVER_SKIP_HOSTS" envSeparator:","`
}

func main() {
	ctx := context.Background()

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	v, err := vault.NewFromBase64Key(cfg.VaultKey)
	if err != nil {
		logger.Fatal("init credential vault", zap.Error(err))
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init master postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	registryStore, err := persistence.NewRegistryStore(pool)
	if err != nil {
		logger.Fatal("init registry store", zap.Error(err))
	}
	credentialStore, err := persistence.NewCredentialStore(pool)
	if err != nil {
		logger.Fatal("init credential store", zap.Error(err))
	}
	domainStore, err := persistence.NewDomainStore(pool)
	if err != nil {
		logger.Fatal("init domain store", zap.Error(err))
	}
	creditStore, err := persistence.NewCreditStore(pool)
	if err != nil {
		logger.Fatal("init credit store", zap.Error(err))
	}

	connRouter := router.New(credentialStore, v, logger)
	defer connRouter.Clear()

	domainResolver := resolver.New(domainStore, logger,
		resolver.WithTTL(cfg.DomainCacheTTL),
		resolver.WithSkipHosts(cfg.SkipHosts...),
	)
	defer domainResolver.Close()

	storesRepo, err := storesrepo.NewPostgres(registryStore)
	if err != nil {
		logger.Fatal("init stores repo", zap.Error(err))
	}
	creditsRepo, err := creditsrepo.NewPostgres(creditStore)
	if err != nil {
		logger.Fatal("init credits repo", zap.Error(err))
	}
	creditsService := creditsservice.New(creditsRepo)

	orchestrator := storesprovisioning.New(logger)
	storesService := storesservice.New(
		storesRepo,
		credentialStore,
		domainStore,
		creditStore,
		connRouter,
		domainResolver,
		v,
		orchestrator,
		logger,
		storesservice.Config{
			MaxStoresPerAccount: cfg.MaxStores,
			PlatformDomain:      cfg.PlatformDomain,
		},
	)

	storesHTTPHandler := storeshandler.New(storesService, logger)
	creditsHTTPHandler := creditshandler.New(creditsService, logger)

	authMiddleware := buildAuthMiddleware(ctx, cfg, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))
	rootRouter.Use(resolver.Middleware(domainResolver))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Method(http.MethodGet, "/metrics", promhttp.Handler())

	registerDocsRoutes(rootRouter, logger)

	spec, err := contracts.LoadPlatform()
	if err != nil {
		logger.Fatal("load platform contract", zap.Error(err))
	}
	specValidator := oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: platformmiddleware.ValidateAuthenticationViaSwagger,
		},
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	apiRouter.Use(platformmiddleware.RequestTrace)
	apiRouter.Use(specValidator)
	storesHTTPHandler.Routes(apiRouter)
	creditsHTTPHandler.Routes(apiRouter)

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
