package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"marketgen/internal/app"
	"marketgen/internal/config"
	"marketgen/internal/httpclient"
	"marketgen/internal/ratelimit"
	"marketgen/internal/server"
	"marketgen/internal/util"
	"marketgen/pkg/ai"
	"marketgen/pkg/imagegen"
	"marketgen/pkg/session"
	"marketgen/pkg/storage"
	"marketgen/pkg/store"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	records, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer closeStore()

	objects, err := storage.NewMinioStore(storage.MinioOptions{
		Endpoint:      cfg.MinioEndpoint,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		Bucket:        cfg.MinioBucket,
		UseSSL:        cfg.MinioUseSSL,
		PublicBaseURL: cfg.ObjectPublicBaseURL,
	})
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	httpClient := httpclient.New(httpclient.Options{Timeout: cfg.HTTPTimeout()})
	text, err := ai.NewTextGenerator(textConfig(cfg), httpClient)
	if err != nil {
		log.Fatalf("failed to init text provider: %v", err)
	}
	images := imagegen.New(imagegen.Options{
		CogViewAPIKey: cfg.CogViewAPIKey,
		CogViewModel:  cfg.CogViewModel,
		ForgeAPIURL:   cfg.ForgeAPIURL,
		ForgeAPIKey:   cfg.ForgeAPIKey,
		Store:         objects,
		HTTPClient:    httpClient,
	})
	if images.Configured() {
		slog.Info("image providers configured", "chain", images.ProviderNames())
	} else {
		slog.Warn("no image provider configured; poster generation will fail")
	}

	var (
		revoker session.TokenRevoker = session.NewMemoryRevoker()
		limiter *ratelimit.FixedWindowLimiter
	)
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		revoker = session.NewRedisRevoker(rdb)
		if cfg.GenerateRateLimitPerMinute > 0 {
			limiter, err = ratelimit.NewFixedWindowLimiter(rdb, "marketgen:ratelimit:generate", cfg.GenerateRateLimitPerMinute, time.Minute)
			if err != nil {
				log.Fatalf("failed to init rate limiter: %v", err)
			}
		}
	} else {
		slog.Warn("redis not configured; session revocation is in-process and generation is not rate limited")
	}

	sessions, err := session.NewManagerFromPEM(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, session.Options{
		KeyID:      cfg.JWTKeyID,
		TTL:        sessionTTL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		VerifyKeys: cfg.JWTVerifyKeys,
		Revoker:    revoker,
	})
	if err != nil {
		log.Fatalf("failed to init sessions: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:          records,
		Objects:        objects,
		Text:           text,
		Images:         images,
		OwnerOpenID:    cfg.OwnerOpenID,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	httpServer, err := server.New(server.Config{
		App:                appCore,
		Sessions:           sessions,
		GenerateLimiter:    limiter,
		CookieName:         cfg.SessionCookieName,
		TrustedProxies:     trusted,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		// Generation calls wait on model providers.
		WriteTimeout: cfg.HTTPTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "store", cfg.StoreDriver, "text_provider", cfg.TextProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
	slog.Info("server stopped")
}

func openStore(cfg config.FileConfig) (store.Store, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}
	gs, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return gs, func() {
		if err := gs.Close(); err != nil {
			slog.Warn("close store", "err", err)
		}
	}, nil
}

func textConfig(cfg config.FileConfig) ai.Config {
	switch strings.ToLower(cfg.TextProvider) {
	case "gemini":
		return ai.Config{Provider: "gemini", APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}
	case "ollama":
		return ai.Config{Provider: "ollama", BaseURL: cfg.OllamaBaseURL, Model: cfg.OllamaModel}
	default:
		return ai.Config{Provider: "openai", BaseURL: cfg.OpenAIBaseURL, APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel}
	}
}
