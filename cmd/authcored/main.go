// Command authcored runs the credential/session engine behind its HTTP API.
// Configuration comes from the environment (a .env file is honored in
// development); missing token secrets abort startup.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/probelight/authcore"
	"github.com/probelight/authcore/httpapi"
)

func main() {
	_ = godotenv.Load()

	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "authcored").Logger()

	engineCfg, httpCfg, redisAddr, port := loadConfig(log)

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", redisAddr).Msg("redis unreachable")
	}

	engine, err := authcore.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithAuditSink(authcore.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		log.Fatal().Err(err).Msg("engine build failed")
	}
	defer engine.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())

	server := httpapi.New(engine, httpCfg, nil, log)
	server.Register(e)

	go func() {
		log.Info().Str("port", port).Msg("listening")
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}

func loadConfig(log zerolog.Logger) (authcore.Config, httpapi.Config, string, string) {
	cfg := authcore.Config{}

	cfg.Token.AccessSecret = []byte(must(log, "ACCESS_TOKEN_SECRET"))
	cfg.Token.RefreshSecret = []byte(must(log, "REFRESH_TOKEN_SECRET"))
	cfg.Token.AccessExpiry = duration(log, "ACCESS_TOKEN_TTL", 15*time.Minute)
	cfg.Token.RefreshExpiry = duration(log, "REFRESH_TOKEN_TTL", 7*24*time.Hour)
	cfg.Token.Issuer = envOr("TOKEN_ISSUER", "authcore")

	cfg.Password.Memory = 64 * 1024
	cfg.Password.Time = 2
	cfg.Password.Parallelism = 2
	cfg.Password.SaltLength = 16
	cfg.Password.KeyLength = 32
	cfg.Password.MinLength = intOr(log, "PASSWORD_MIN_LENGTH", 8)

	cfg.Lockout.FailureThreshold = intOr(log, "LOCKOUT_THRESHOLD", 5)
	cfg.Lockout.LockDuration = duration(log, "LOCKOUT_DURATION", 15*time.Minute)

	cfg.Session.RedisPrefix = envOr("REDIS_PREFIX", "ac")
	cfg.Session.MaxHistoryPerDevice = intOr(log, "MAX_HISTORY_PER_DEVICE", 50)
	cfg.Session.MaxRefreshTokens = intOr(log, "MAX_REFRESH_TOKENS", 100)

	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 256
	cfg.Audit.DropIfFull = true

	httpCfg := httpapi.Config{
		RefreshExpiry:    cfg.Token.RefreshExpiry,
		SecureCookies:    envOr("APP_ENV", "dev") != "dev",
		AdminRequirement: envOr("ADMIN_REQUIREMENT", "auth:admin"),
	}

	return cfg, httpCfg, envOr("REDIS_ADDR", "localhost:6379"), envOr("APP_PORT", "8080")
}

func must(log zerolog.Logger, key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatal().Str("key", key).Msg("missing required env var")
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOr(log zerolog.Logger, key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatal().Str("key", key).Str("value", v).Msg("invalid integer env var")
	}
	return n
}

func duration(log zerolog.Logger, key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatal().Str("key", key).Str("value", v).Msg("invalid duration env var")
	}
	return d
}
