package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/ce-client/ce"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"

	"github.com/tendant/simple-clients/pkg/audit"
	"github.com/tendant/simple-clients/pkg/authz"
	"github.com/tendant/simple-clients/pkg/clientreg"
	clientapi "github.com/tendant/simple-clients/pkg/clientreg/api"
	"github.com/tendant/simple-clients/pkg/consent"
	consentapi "github.com/tendant/simple-clients/pkg/consent/api"
	"github.com/tendant/simple-clients/pkg/enrich"
	"github.com/tendant/simple-clients/pkg/identity"
	"github.com/tendant/simple-clients/pkg/outbox"
	"github.com/tendant/simple-clients/pkg/ratelimit"
	"github.com/tendant/simple-clients/pkg/rotation"
	"github.com/tendant/simple-clients/pkg/tenant"
)

type ClientsDbConfig struct {
	Host     string `env:"CLIENTS_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"CLIENTS_PG_PORT" env-default:"5432"`
	Database string `env:"CLIENTS_PG_DATABASE" env-default:"client_db"`
	User     string `env:"CLIENTS_PG_USER" env-default:"clients"`
	Password string `env:"CLIENTS_PG_PASSWORD" env-default:"pwd"`
}

func (d ClientsDbConfig) toDbConfig() dbutils.DbConfig {
	return dbutils.DbConfig{
		Host:     d.Host,
		Port:     d.Port,
		Database: d.Database,
		User:     d.User,
		Password: d.Password,
	}
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type IdentityConfig struct {
	CookieName     string `env:"AUTH_COOKIE_NAME" env-default:"asc_auth_key"`
	CallTimeoutMs  int    `env:"IDENTITY_CALL_TIMEOUT_MS" env-default:"3000"`
	MaxRetries     uint64 `env:"IDENTITY_MAX_RETRIES" env-default:"3"`
	LookupParallel int    `env:"IDENTITY_LOOKUP_PARALLEL" env-default:"8"`
}

type SecretConfig struct {
	EncryptionKey string `env:"CLIENT_SECRET_ENCRYPTION_KEY" env-default:"very-secure-encryption-key"`
}

type ScopeConfig struct {
	AllowedScopes []string `env:"ALLOWED_SCOPES" env-default:"openid,accounts:read,accounts:write,files:read,files:write,rooms:read,rooms:write"`
}

type RateLimitConfig struct {
	WindowMax     int64   `env:"RATE_LIMIT_WINDOW_MAX" env-default:"60"`
	WindowSeconds int     `env:"RATE_LIMIT_WINDOW_SECONDS" env-default:"60"`
	LocalCapacity int     `env:"RATE_LIMIT_LOCAL_CAPACITY" env-default:"20"`
	LocalRefill   float64 `env:"RATE_LIMIT_LOCAL_REFILL" env-default:"1.0"`
}

type AuditConfig struct {
	Enabled     bool   `env:"AUDIT_ENABLED" env-default:"false"`
	EventHubURL string `env:"AUDIT_EVENT_HUB_URL" env-default:"http://localhost:8083"`
}

type Config struct {
	ClientsDbConfig ClientsDbConfig
	RedisConfig     RedisConfig
	IdentityConfig  IdentityConfig
	SecretConfig    SecretConfig
	ScopeConfig     ScopeConfig
	RateLimitConfig RateLimitConfig
	AuditConfig     AuditConfig
	AppConfig       app.AppConfig
}

func main() {

	config := Config{}
	cleanenv.ReadEnv(&config)

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	dbConfig := config.ClientsDbConfig.toDbConfig()
	pool, err := dbutils.NewDbPool(context.Background(), dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
		os.Exit(-1)
	}

	clientRepo, err := clientreg.NewPostgresClientRepository(pool)
	if err != nil {
		slog.Error("Failed creating client repository", "err", err)
		os.Exit(-1)
	}
	authzRepo, err := authz.NewPostgresAuthorizationRepository(pool)
	if err != nil {
		slog.Error("Failed creating authorization repository", "err", err)
		os.Exit(-1)
	}
	consentRepo, err := consent.NewPostgresConsentRepository(pool)
	if err != nil {
		slog.Error("Failed creating consent repository", "err", err)
		os.Exit(-1)
	}
	taskRepo, err := outbox.NewPostgresTaskRepository(pool)
	if err != nil {
		slog.Error("Failed creating task repository", "err", err)
		os.Exit(-1)
	}

	cipher, err := clientreg.NewSecretCipher(config.SecretConfig.EncryptionKey)
	if err != nil {
		slog.Error("Failed creating secret cipher", "err", err)
		os.Exit(-1)
	}

	scheduler := outbox.NewScheduler(taskRepo)
	clientService := clientreg.NewClientService(clientRepo, cipher, scheduler, config.ScopeConfig.AllowedScopes)
	revocationService := authz.NewRevocationService(authzRepo)
	consentService := consent.NewConsentService(consentRepo, scheduler)
	pipeline := rotation.NewPipeline(revocationService, clientService)

	identityClient := identity.NewClient(
		identity.WithCookieName(config.IdentityConfig.CookieName),
		identity.WithCallTimeout(time.Duration(config.IdentityConfig.CallTimeoutMs)*time.Millisecond),
		identity.WithMaxRetries(config.IdentityConfig.MaxRetries),
	)
	enricher := enrich.NewEnricher(identityClient,
		enrich.WithLookupTimeout(time.Duration(config.IdentityConfig.CallTimeoutMs)*time.Millisecond),
		enrich.WithMaxConcurrent(config.IdentityConfig.LookupParallel),
	)

	// Background worker draining the revocation task queue
	worker := outbox.NewWorker(taskRepo)
	worker.Register(outbox.KindClientCascade, func(ctx context.Context, payload []byte) error {
		var p outbox.ClientCascadePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		if err := revocationService.DeleteByClientID(ctx, p.TenantID, p.ClientID); err != nil {
			return err
		}
		return consentService.InvalidateByClientID(ctx, p.TenantID, p.ClientID)
	})
	worker.Register(outbox.KindPrincipalRevocation, func(ctx context.Context, payload []byte) error {
		var p outbox.PrincipalRevocationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		return revocationService.DeleteByClientIDAndPrincipal(ctx, p.TenantID, p.ClientID, p.PrincipalID)
	})
	go worker.Run(context.Background())

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.RedisConfig.Addr,
		Password: config.RedisConfig.Password,
		DB:       config.RedisConfig.DB,
	})
	distributed := ratelimit.NewRedisLimiter(redisClient, "clients:rl:",
		config.RateLimitConfig.WindowMax,
		time.Duration(config.RateLimitConfig.WindowSeconds)*time.Second)
	local := ratelimit.NewLocalLimiter(config.RateLimitConfig.LocalCapacity, config.RateLimitConfig.LocalRefill, time.Hour)
	guard, err := ratelimit.NewGuard("identity:client", distributed, local)
	if err != nil {
		slog.Error("Failed creating rate limit guard", "err", err)
		os.Exit(-1)
	}

	clientHandle := clientapi.NewHandle(clientService, enricher, pipeline, guard)
	consentHandle := consentapi.NewHandle(consentService, guard)

	authMiddleware := tenant.NewMiddleware(identityClient, config.IdentityConfig.CookieName)
	adminMiddleware := tenant.NewAdminMiddleware(identityClient, config.IdentityConfig.CookieName)

	// The management and consent handlers run their own operations
	// through the guard, so only the read-only consent screen routes
	// take the guard as middleware. Guarding in both places would
	// charge each request two limiter permits.
	server.R.Route("/api/2.0/clients", func(r chi.Router) {
		// Consent screen and consent management need a signed-in user
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)
			r.Group(func(r chi.Router) {
				r.Use(guard.Middleware)
				clientHandle.RegisterInfoRoutes(r)
			})
			consentHandle.RegisterRoutes(r)
		})

		// Management surface is for tenant administrators only
		r.Group(func(r chi.Router) {
			r.Use(adminMiddleware.Handler)
			if config.AuditConfig.Enabled {
				wg := &sync.WaitGroup{}
				eventClient, err := ce.NewEventClient(context.Background(), wg, config.AuditConfig.EventHubURL)
				if err != nil {
					slog.Error("Failed creating audit event client", "err", err)
					os.Exit(-1)
				}
				auditMiddleware, err := audit.NewMiddleware(audit.Config{EventClient: eventClient})
				if err != nil {
					slog.Error("Failed creating audit middleware", "err", err)
					os.Exit(-1)
				}
				r.Use(auditMiddleware.AuditMutations)
			}
			clientHandle.RegisterRoutes(r)
		})
	})

	server.Run()
}
