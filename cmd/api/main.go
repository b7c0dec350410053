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

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/biometric"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/join"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/schema"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/telemetry"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

const serviceName = "service-attendance-go"

type serverConfig struct {
	Addr          string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8431"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

func main() {
	// best-effort: without a .env file the real environment is used
	_ = godotenv.Load()

	logCfg := utilities.ConfigFromEnv()
	lg, err := utilities.Init(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Infow("starting", "service", serviceName)

	var srvCfg serverConfig
	if err := env.Parse(&srvCfg); err != nil {
		sugar.Fatalf("server config: %v", err)
	}

	authCfg, err := auth.ConfigFromEnv().RequireSecret(logCfg.Dev)
	if err != nil {
		sugar.Fatalf("auth config: %v", err)
	}
	if authCfg.Secret == auth.DevSecret {
		sugar.Warn("JWT_SECRET not set; signing tokens with the development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName)
	if err != nil {
		sugar.Warnw("tracing disabled", "err", err)
	}

	dbCfg := database.ConfigFromEnv()
	db, err := database.Open(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	sugar.Infow("database connected", "driver", db.DriverName())

	if err := schema.Ensure(ctx, db); err != nil {
		sugar.Fatalf("ensure schema: %v", err)
	}

	if srvCfg.AdminEmail != "" && srvCfg.AdminPassword != "" {
		if _, err := user.NewUserService(db, nil, nil).Bootstrap(ctx, srvCfg.AdminEmail, srvCfg.AdminPassword); err != nil {
			sugar.Fatalf("bootstrap admin: %v", err)
		}
		sugar.Infow("admin account ready", "email", srvCfg.AdminEmail)
	}

	xCfg := biometric.ExtractorConfigFromEnv()
	var extractor biometric.Extractor
	if xCfg.URL != "" {
		extractor = biometric.NewHTTPExtractor(xCfg, nil)
	} else {
		sugar.Warn("EXTRACTOR_URL not set; only pre-extracted embeddings are accepted")
	}

	handler := router.RegisterRoutes(sugar, db, router.Options{
		HTTP:      router.ConfigFromEnv(),
		Auth:      authCfg,
		Join:      join.ConfigFromEnv(),
		Dimension: xCfg.Dimension,
		Extractor: extractor,
		Metrics:   metrics.New(),
	})
	srv := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", srvCfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := shutdownTracing(doneCtx); err != nil {
		sugar.Warnf("tracer shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
