package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rightvendors/portfolyze/internal/audit"
	audithandler "github.com/rightvendors/portfolyze/internal/audit/handler"
	auditrepo "github.com/rightvendors/portfolyze/internal/audit/repository"
	"github.com/rightvendors/portfolyze/internal/captcha"
	captchahandler "github.com/rightvendors/portfolyze/internal/captcha/handler"
	"github.com/rightvendors/portfolyze/internal/config"
	"github.com/rightvendors/portfolyze/internal/contact"
	contacthandler "github.com/rightvendors/portfolyze/internal/contact/handler"
	contactrepo "github.com/rightvendors/portfolyze/internal/contact/repository"
	"github.com/rightvendors/portfolyze/internal/db"
	"github.com/rightvendors/portfolyze/internal/devotp"
	devotphandler "github.com/rightvendors/portfolyze/internal/devotp/handler"
	healthhandler "github.com/rightvendors/portfolyze/internal/health/handler"
	identityhandler "github.com/rightvendors/portfolyze/internal/identity/handler"
	identityrepo "github.com/rightvendors/portfolyze/internal/identity/repository"
	"github.com/rightvendors/portfolyze/internal/identity/service"
	"github.com/rightvendors/portfolyze/internal/logger"
	mfarepo "github.com/rightvendors/portfolyze/internal/mfa/repository"
	"github.com/rightvendors/portfolyze/internal/mfa/sms"
	"github.com/rightvendors/portfolyze/internal/ratelimit"
	"github.com/rightvendors/portfolyze/internal/security"
	"github.com/rightvendors/portfolyze/internal/server"
	"github.com/rightvendors/portfolyze/internal/server/interceptors"
	sessionrepo "github.com/rightvendors/portfolyze/internal/session/repository"
	"github.com/rightvendors/portfolyze/internal/telemetry"
	telemetryotel "github.com/rightvendors/portfolyze/internal/telemetry/otel"
	"github.com/rightvendors/portfolyze/internal/telemetry/producer"
)

const (
	healthInterval = 15 * time.Second
	sweepInterval  = time.Minute
)

var baseModule = fx.Module("base",
	fx.Provide(
		config.Load,
		newLogger,
		newOTel,
		newEmitter,
	),
)

var dataModule = fx.Module("data",
	fx.Provide(
		newDB,
		newRedis,
		newRepositories,
		newLimiter,
		newChallengeStore,
	),
)

var authModule = fx.Module("auth",
	fx.Provide(
		newTokenProvider,
		newAuditLogger,
		newChallengeRegistry,
		newDevOTPStore,
		newPhoneAuthService,
		newContactService,
	),
	fx.Invoke(runVerificationSweeper),
)

var transportModule = fx.Module("transport",
	fx.Provide(
		newHealth,
		newEcho,
	),
	fx.Invoke(
		runHTTPServer,
		runGRPCServer,
	),
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	l, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service", serviceName)), nil
}

func newOTel(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*telemetryotel.Providers, error) {
	p, err := telemetryotel.NewProviders(context.Background(), telemetryotel.Settings{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, err
	}
	p.SetGlobal()
	if cfg.OTLPEndpoint != "" {
		logger.Info("OpenTelemetry export enabled", zap.String("endpoint", cfg.OTLPEndpoint))
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// Async emits started by the last requests get to finish before the exporters flush.
			select {
			case <-time.After(telemetry.ShutdownDrainDuration):
			case <-ctx.Done():
			}
			return p.Shutdown(ctx)
		},
	})
	return p, nil
}

// newEmitter fans auth events out to OTel logs and, when brokers are configured, Kafka.
func newEmitter(lc fx.Lifecycle, cfg *config.Config, otelProviders *telemetryotel.Providers, logger *zap.Logger) telemetry.EventEmitter {
	emitters := telemetry.Fanout{telemetryotel.NewEventEmitter(otelProviders.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic); kp != nil {
		logger.Info("telemetry: publishing to Kafka",
			zap.Strings("brokers", cfg.TelemetryKafkaBrokersList()),
			zap.String("topic", cfg.TelemetryKafkaTopic))
		emitters = append(emitters, kp)
		lc.Append(fx.StopHook(kp.Close))
	}
	return emitters
}

// newDB returns nil when DATABASE_URL is unset; repositories then live in memory.
func newDB(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory repositories")
		return nil, nil
	}
	conn, err := db.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(conn.Close))
	return conn, nil
}

// newRedis returns nil when REDIS_URL is unset.
func newRedis(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set; rate limits and challenge nonces are per process")
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	lc.Append(fx.StopHook(client.Close))
	return client, nil
}

type repositories struct {
	fx.Out

	Verifications mfarepo.Repository
	Identities    identityrepo.Repository
	Sessions      sessionrepo.Repository
	Audit         auditrepo.Repository
	Contacts      contactrepo.Repository
}

func newRepositories(conn *sql.DB) repositories {
	if conn == nil {
		return repositories{
			Verifications: mfarepo.NewMemoryRepository(),
			Identities:    identityrepo.NewMemoryRepository(),
			Sessions:      sessionrepo.NewMemoryRepository(),
			Audit:         auditrepo.NewMemoryRepository(),
			Contacts:      contactrepo.NewMemoryRepository(),
		}
	}
	return repositories{
		Verifications: mfarepo.NewPostgresRepository(conn),
		Identities:    identityrepo.NewPostgresRepository(conn),
		Sessions:      sessionrepo.NewPostgresRepository(conn),
		Audit:         auditrepo.NewPostgresRepository(conn),
		Contacts:      contactrepo.NewPostgresRepository(conn),
	}
}

func newLimiter(rdb *redis.Client) ratelimit.Limiter {
	if rdb == nil {
		return ratelimit.NewMemory()
	}
	return ratelimit.NewRedis(rdb, "")
}

func newChallengeStore(rdb *redis.Client) captcha.Store {
	if rdb == nil {
		return captcha.NewMemoryStore()
	}
	return captcha.NewRedisStore(rdb, "")
}

func newTokenProvider(cfg *config.Config, logger *zap.Logger) (*security.TokenProvider, error) {
	signer, pub, ephemeral, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	if ephemeral {
		if cfg.Env == "production" {
			return nil, errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set in production")
		}
		logger.Warn("JWT keys not configured; using an ephemeral key pair, sessions will not survive a restart")
	}
	logger.Info("JWT signing", zap.String("alg", security.KeyAlg(pub)))
	return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL()), nil
}

func newAuditLogger(repo auditrepo.Repository, logger *zap.Logger) audit.AuditLogger {
	return audit.NewLogger(repo, interceptors.GetClientIP, logger)
}

func newChallengeRegistry(store captcha.Store, tokens *security.TokenProvider, cfg *config.Config, logger *zap.Logger) *captcha.Registry {
	return captcha.NewRegistry(store, tokens, cfg.ChallengeTTL, logger)
}

// newDevOTPStore returns nil unless dev OTP mode is on.
func newDevOTPStore(cfg *config.Config, logger *zap.Logger) *devotp.MemoryStore {
	if !cfg.DevOTP() {
		return nil
	}
	logger.Warn("DEV MODE: OTPs are not sent by SMS and are readable at GET /v1/dev/otp")
	return devotp.NewMemoryStore()
}

type authServiceParams struct {
	fx.In

	Config        *config.Config
	Logger        *zap.Logger
	Verifications mfarepo.Repository
	Identities    identityrepo.Repository
	Sessions      sessionrepo.Repository
	Challenges    *captcha.Registry
	Tokens        *security.TokenProvider
	Limiter       ratelimit.Limiter
	DevOTP        *devotp.MemoryStore
	Audit         audit.AuditLogger
	Telemetry     telemetry.EventEmitter
}

func newPhoneAuthService(p authServiceParams) *service.PhoneAuthService {
	cfg := p.Config
	d := service.Deps{
		Verifications: p.Verifications,
		Identities:    p.Identities,
		Sessions:      p.Sessions,
		Challenges:    p.Challenges,
		Hasher:        security.NewHasher(cfg.BcryptCost),
		Tokens:        p.Tokens,
		Limiter:       p.Limiter,
		SMS:           sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender),
		Audit:         p.Audit,
		Telemetry:     p.Telemetry,
		Logger:        p.Logger,
	}
	if p.DevOTP != nil {
		d.DevOTP = p.DevOTP
	} else if cfg.SMSLocalAPIKey == "" {
		p.Logger.Warn("SMS_LOCAL_API_KEY not set; verification codes cannot be delivered")
	}
	return service.NewPhoneAuthService(d, service.Options{
		OTPTTL:        cfg.OTPTTL,
		MaxAttempts:   cfg.OTPMaxAttempts,
		SendLimit:     cfg.OTPSendLimit,
		SendWindow:    cfg.OTPSendWindow,
		RefreshTTL:    cfg.RefreshTTL(),
		DefaultRegion: cfg.PhoneDefaultRegion,
	})
}

func newContactService(cfg *config.Config, repo contactrepo.Repository, auditLogger audit.AuditLogger, emitter telemetry.EventEmitter, logger *zap.Logger) *contact.Service {
	var relay contact.Relay
	r := contact.NewEmailJSRelay(cfg.ContactRelayURL, cfg.ContactServiceID, cfg.ContactTemplateID, cfg.ContactPublicKey, cfg.ContactToEmail)
	if r.Configured() {
		relay = r
	} else {
		logger.Info("contact relay not configured; contact messages are stored and logged only")
	}
	return contact.NewService(repo, relay, auditLogger, emitter, logger)
}

// runVerificationSweeper deletes expired verifications so abandoned codes do not pile up.
func runVerificationSweeper(lc fx.Lifecycle, repo mfarepo.Repository, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				t := time.NewTicker(sweepInterval)
				defer t.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case now := <-t.C:
						n, err := repo.DeleteExpired(ctx, now.UTC())
						if err != nil {
							logger.Warn("sweep expired verifications", zap.Error(err))
						} else if n > 0 {
							logger.Debug("swept expired verifications", zap.Int64("count", n))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}

func newHealth(conn *sql.DB, rdb *redis.Client, logger *zap.Logger) *healthhandler.Server {
	checks := map[string]healthhandler.Pinger{}
	if conn != nil {
		checks["postgres"] = conn
	}
	if rdb != nil {
		checks["redis"] = healthhandler.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return healthhandler.NewServer(checks, logger)
}

type echoParams struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Tokens    *security.TokenProvider
	Health    *healthhandler.Server
	Audit     audit.AuditLogger
	AuditRepo auditrepo.Repository
	Telemetry telemetry.EventEmitter
	OTel      *telemetryotel.Providers
	Auth      *service.PhoneAuthService
	Registry  *captcha.Registry
	Contact   *contact.Service
	DevOTP    *devotp.MemoryStore
}

func newEcho(p echoParams) *echo.Echo {
	routes := []server.Routes{
		captchahandler.NewHandler(p.Registry),
		identityhandler.NewHandler(p.Auth),
		audithandler.NewHandler(p.AuditRepo),
		contacthandler.NewHandler(p.Contact),
	}
	if p.DevOTP != nil {
		routes = append(routes, devotphandler.NewHandler(p.DevOTP))
	}
	return server.NewEcho(server.HTTPDeps{
		Logger:         p.Logger,
		Tokens:         p.Tokens,
		Health:         p.Health,
		Audit:          p.Audit,
		Telemetry:      p.Telemetry,
		MeterProvider:  p.OTel.MeterProvider,
		TracerProvider: p.OTel.TracerProvider,
		Routes:         routes,
	})
}

func runHTTPServer(lc fx.Lifecycle, cfg *config.Config, e *echo.Echo, logger *zap.Logger) {
	srv := server.NewHTTPServer(cfg.HTTPAddr, cfg.AllowedOrigins(), e)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			lis, err := net.Listen("tcp", cfg.HTTPAddr)
			if err != nil {
				return err
			}
			logger.Info("HTTP server listening", zap.String("addr", lis.Addr().String()))
			go func() {
				if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("HTTP server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down HTTP server...")
			return srv.Shutdown(ctx)
		},
	})
}

func runGRPCServer(lc fx.Lifecycle, cfg *config.Config, health *healthhandler.Server, logger *zap.Logger) {
	s := server.NewGRPCServer(health, logger)
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				cancel()
				return err
			}
			go health.Run(ctx, healthInterval)
			logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
			go func() {
				if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
					logger.Error("gRPC server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Info("shutting down gRPC server...")
			cancel()
			health.Shutdown()
			s.GracefulStop()
			return nil
		},
	})
}
