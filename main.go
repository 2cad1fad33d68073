package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumen/backend/go-services/handlers"
	"github.com/lumenpress/lumen/backend/go-services/internal/article/handler"
	"github.com/lumenpress/lumen/backend/go-services/internal/article/repository"
	"github.com/lumenpress/lumen/backend/go-services/internal/article/service"
	"github.com/lumenpress/lumen/backend/go-services/internal/cache"
	"github.com/lumenpress/lumen/backend/go-services/internal/config"
	"github.com/lumenpress/lumen/backend/go-services/internal/database"
	"github.com/lumenpress/lumen/backend/go-services/internal/markdown"
	"github.com/lumenpress/lumen/backend/go-services/internal/oidc"
	"github.com/lumenpress/lumen/backend/go-services/internal/storage"
	"github.com/lumenpress/lumen/backend/go-services/internal/tokens"
	"github.com/lumenpress/lumen/backend/go-services/pkg/logger"
	"github.com/lumenpress/lumen/backend/go-services/pkg/metrics"
	"github.com/lumenpress/lumen/backend/go-services/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: store=%s keycloak=%v redis=%v minio=%v", cfg.Store.Driver, cfg.Keycloak.URL != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := map[string]handlers.Pinger{}

	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis ping failed (%s): %v", cfg.Redis.Addr(), err)
		} else {
			logger.Infof("connected to redis at %s", cfg.Redis.Addr())
		}
		defer func() { _ = rdb.Close() }()
		deps["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open %s store: %v", cfg.Store.Driver, err)
	}
	defer closeStore()
	store = repository.WithTimeout(store, cfg.Store.Timeout)
	deps["store"] = store.Ping

	var blobs service.BlobStore
	if cfg.MinIO.Endpoint != "" {
		ms, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Fatalf("failed to initialize minio storage: %v", err)
		}
		blobs = ms
		deps["blobs"] = ms.Ping
	} else {
		logger.Warnf("MINIO_ENDPOINT not set; blobs are kept in memory")
		ms := storage.NewMemoryStorage()
		blobs = ms
		deps["blobs"] = ms.Ping
	}

	opts := service.Options{
		WordsPerMinute: cfg.Content.WordsPerMinute,
		MaxUploadBytes: cfg.Content.UploadMaxBytes,
		URLExpiry:      cfg.MinIO.URLExpiry,
	}
	var revocations middleware.RevocationChecker
	var revoker handlers.Revoker
	if rdb != nil {
		opts.Cache = cache.NewViewCache(rdb, cfg.Cache.TTL)
		rev := cache.NewRevocations(rdb)
		revocations, revoker = rev, rev
	}
	svc := service.New(store, blobs, markdown.NewRenderer(), opts)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r := newRouter(cfg, routerDeps{
		svc:         svc,
		verifier:    buildVerifier(ctx, cfg),
		revocations: revocations,
		revoker:     revoker,
		redis:       rdb,
		ready:       deps,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting article service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// routerDeps is everything newRouter mounts. redis, revocations and revoker
// may be nil.
type routerDeps struct {
	svc         *service.Service
	verifier    middleware.Verifier
	revocations middleware.RevocationChecker
	revoker     handlers.Revoker
	redis       *redis.Client
	ready       map[string]handlers.Pinger
}

// newRouter builds the gin engine: CORS, request logging, optional rate
// limiting, the /api routes and the operational endpoints.
func newRouter(cfg *config.Config, d routerDeps) *gin.Engine {
	r := gin.New()

	// Lightweight CORS for the editor frontend.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && d.redis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(d.redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	auth := middleware.AuthMiddleware(d.verifier, d.revocations)
	api := r.Group("/api")
	handler.NewArticleHandler(d.svc, cfg.Content.UploadMaxBytes).Register(api, auth)
	handlers.NewAuthHandler(d.revoker).Register(api, auth)
	handlers.RegisterSwagger(r)
	handlers.RegisterHealth(r, startTime, d.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		db, err := database.OpenSQLite(cfg.Store.SQLiteDSN)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewBunRepo(db)
		if err := repo.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, func() { _ = db.Close() }, nil
	case config.DriverMongo:
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		repo, err := repository.NewMongoRepo(ctx, client.Database(cfg.MongoDB.Database))
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		return repo, closeFn, nil
	default:
		logger.Warnf("using in-memory store; data is lost on restart")
		return repository.NewMemoryRepo(), func() {}, nil
	}
}

// buildVerifier chains the configured token verifiers: locally issued HMAC
// tokens first, then Keycloak, then the insecure integration verifier.
func buildVerifier(ctx context.Context, cfg *config.Config) middleware.Verifier {
	var chain middleware.Verifiers
	if cfg.JWT.Secret != "" {
		chain = append(chain, tokens.NewHMACVerifier(cfg.JWT.Secret))
	}
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" {
		issuer := oidc.KeycloakIssuer(cfg.Keycloak.URL, cfg.Keycloak.Realm)
		ver, err := oidc.NewVerifier(ctx, issuer, cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier for %s: %v", issuer, err)
		} else {
			chain = append(chain, ver)
		}
	}
	if cfg.Keycloak.AllowInsecure {
		logger.Warn("enabling insecure token verifier (integration mode)")
		chain = append(chain, oidc.NewInsecureVerifier())
	}
	if len(chain) == 0 {
		logger.Warnf("no token verifier configured; authenticated routes will reject every request")
	}
	return chain
}
