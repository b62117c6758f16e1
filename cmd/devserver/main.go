package main

// @title           Lunch Match - Dev Server API
// @version         1.0
// @description     Reference collaborator serving the resources polled by lunchsync.
// @host      localhost:8080
// @BasePath  /
// @securityDefinitions.basic  BasicAuth
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	swagger "github.com/gofiber/swagger"

	_ "github.com/Alwanly/lunch-match-sync/docs/devserver"
	"github.com/Alwanly/lunch-match-sync/internal/config"
	"github.com/Alwanly/lunch-match-sync/internal/server/lunch/handler"
	authentication "github.com/Alwanly/lunch-match-sync/pkg/auth"
	"github.com/Alwanly/lunch-match-sync/pkg/database"
	"github.com/Alwanly/lunch-match-sync/pkg/deps"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
	"github.com/Alwanly/lunch-match-sync/pkg/middleware"
	"github.com/Alwanly/lunch-match-sync/pkg/pubsub"
)

func main() {
	log, err := logger.NewLoggerFromEnv("devserver")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting lunch dev server")

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	log.Info("configuration loaded",
		logger.String("server_addr", cfg.ServerAddr),
		logger.String("database_path", cfg.DatabasePath),
		logger.Bool("redis_enabled", cfg.RedisEnabled),
	)

	mid := middleware.NewAuthMiddleware(middleware.SetBasicAuth(&authentication.BasicAuthTConfig{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	}))

	db, err := database.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	if err := database.RunMigrations(db); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}
	log.Info("database ready", logger.String("path", cfg.DatabasePath))

	app := fiber.New(fiber.Config{
		AppName:               "Lunch Dev Server",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.CanonicalLoggerMiddleware(log))

	d := deps.App{
		Fiber:      app,
		Database:   db,
		Logger:     log,
		Middleware: mid,
	}

	if cfg.RedisEnabled {
		redisPub, err := pubsub.NewRedisPubSub(cfg.Redis, log)
		if err != nil {
			log.WithError(err).Error("failed to initialize Redis pub/sub, clients fall back to polling only",
				logger.String("mode", "poll-only"))
		} else {
			d.Pub = redisPub
			log.Info("Redis pub/sub initialized",
				logger.String("addr", cfg.Redis.Addr()),
				logger.String("channel", config.EventsChannel))
			defer redisPub.Close()
		}
	} else {
		log.Info("Redis disabled; events are not published")
	}

	handler.NewHandler(d, cfg)

	app.Get("/swagger/*", swagger.HandlerDefault)

	ctx, cancel := context.WithCancel(context.Background())
	gErr, gCtx := errgroup.WithContext(ctx)

	gErr.Go(func() error {
		log.Info("dev server is running", logger.String("address", cfg.ServerAddr))
		if err := app.Listen(cfg.ServerAddr); err != nil {
			cancel()
			return err
		}
		return nil
	})

	gErr.Go(func() error {
		<-gCtx.Done()

		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("failed to shutdown fiber app")
			return err
		}

		conn, err := db.DB()
		if err != nil {
			return err
		}
		return conn.Close()
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := gErr.Wait(); err != nil {
		log.WithError(err).Fatal("dev server encountered an error")
	}

	log.Info("dev server stopped gracefully")
}
