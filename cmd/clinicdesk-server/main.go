package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/domain/admin"
	"github.com/clinicdesk/clinicdesk/internal/domain/billing"
	"github.com/clinicdesk/clinicdesk/internal/domain/compliance"
	"github.com/clinicdesk/clinicdesk/internal/domain/encounter"
	"github.com/clinicdesk/clinicdesk/internal/domain/identity"
	"github.com/clinicdesk/clinicdesk/internal/domain/queue"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/board"
	"github.com/clinicdesk/clinicdesk/internal/platform/chatbot"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/integrations"
	"github.com/clinicdesk/clinicdesk/internal/platform/middleware"
	"github.com/clinicdesk/clinicdesk/internal/platform/telemetry"
)

// deferredGate lets the queue service be constructed before billing exists.
// Billing needs the encounter service, which in turn needs the queue service,
// so the closure gate is bound after all three are built. Until then every
// closure is allowed.
type deferredGate struct {
	inner queue.ClosureGate
}

func (g *deferredGate) AllowClosure(ctx context.Context, entry *queue.QueueEntry) error {
	if g.inner == nil {
		return nil
	}
	return g.inner.AllowClosure(ctx, entry)
}

// schemaProvisioner implements admin.Provisioner by creating the structure's
// schema and running all migrations against it.
type schemaProvisioner struct {
	pool          *pgxpool.Pool
	migrationsDir string
}

func (p *schemaProvisioner) Provision(ctx context.Context, structureID string) error {
	return db.CreateStructureSchema(ctx, p.pool, structureID, p.migrationsDir)
}

// eventTap mirrors published board events into the integrations forwarder.
// Snapshots are skipped; they carry the whole board and are only meaningful
// to connected displays. Forwarding runs in the background so webhook
// latency never delays the request that triggered the event.
type eventTap struct {
	next      board.Publisher
	forwarder *integrations.Forwarder
}

func (t *eventTap) Publish(ctx context.Context, event board.Event) error {
	if event.Type != board.EventSnapshot {
		outbound := integrations.Event{
			ID:          uuid.NewString(),
			Type:        event.Type,
			StructureID: event.StructureID,
			Payload:     event.Data,
			Timestamp:   event.Timestamp,
		}
		go t.forwarder.Forward(context.WithoutCancel(ctx), outbound)
	}
	return t.next.Publish(ctx, event)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicdesk-server",
		Short: "Practice management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(structureCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "structure_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "structure_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore the schema from a backup instead.")
			return nil
		},
	})

	return cmd
}

func structureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "structure",
		Short: "Manage structures (tenants)",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new structure schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating structure schema: structure_%s\n", name)
			if err := db.CreateStructureSchema(ctx, pool, name, dir); err != nil {
				return err
			}
			fmt.Println("Structure created and migrated successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Structure identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")

	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.New()

	// Board hub and publisher. With Redis configured, events fan out across
	// server instances; without it the hub broadcasts locally.
	hub := board.NewHub(logger)
	var publisher board.Publisher = hub
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient := redis.NewClient(opts)
		redisPub := board.NewRedisPublisher(redisClient, logger)
		publisher = redisPub

		relayCtx, relayCancel := context.WithCancel(ctx)
		defer relayCancel()
		go func() {
			if err := redisPub.Relay(relayCtx, hub); err != nil && relayCtx.Err() == nil {
				logger.Error().Err(err).Msg("board relay stopped")
			}
		}()
		logger.Info().Msg("board events relayed through redis")
	}

	// Outbound integrations: queue and encounter events mirrored to
	// configured webhooks. The tap wraps the publisher before any service
	// captures it.
	var forwarder *integrations.Forwarder
	var deliveryLog integrations.DeliveryLog
	if targets := integrationTargets(cfg); len(targets) > 0 {
		deliveryLog = integrations.NewInMemoryDeliveryLog(1000)
		forwarder = integrations.NewForwarder(targets, cfg.WebhookSecret, deliveryLog, metrics, logger)
		publisher = &eventTap{next: publisher, forwarder: forwarder}
		logger.Info().Int("targets", len(targets)).Msg("integrations enabled")
	}

	// Domain wiring. Queue, encounter and billing reference each other in a
	// cycle (closure gate -> billing -> encounter -> ready marker -> queue),
	// broken by binding the gate last.
	gate := &deferredGate{}
	queueSvc := queue.NewService(queue.NewRepo(pool), gate, metrics, publisher, logger)
	encounterSvc := encounter.NewService(encounter.NewRepo(pool), queueSvc, metrics, publisher, logger)
	billingSvc := billing.NewService(billing.NewRepo(pool), encounterSvc)
	gate.inner = billingSvc

	identitySvc := identity.NewService(identity.NewRepo(pool))
	schedulingSvc := scheduling.NewService(scheduling.NewRepo(pool), queueSvc, logger)
	complianceSvc := compliance.NewService(compliance.NewRepo(pool))

	provisioner := &schemaProvisioner{pool: pool, migrationsDir: "./migrations"}
	adminSvc := admin.NewService(admin.NewRepo(pool), provisioner, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Structure-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// Structure middleware pins each request to its tenant schema.
	e.Use(db.StructureMiddleware(pool, cfg.DefaultTenant))

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// API group
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RequestTimeout(30 * time.Second))

	// Domain routes
	queue.NewHandler(queueSvc).RegisterRoutes(apiV1)
	encounter.NewHandler(encounterSvc).RegisterRoutes(apiV1)
	identity.NewHandler(identitySvc).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedulingSvc).RegisterRoutes(apiV1)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)
	admin.NewHandler(adminSvc).RegisterRoutes(apiV1)
	compliance.NewHandler(complianceSvc).RegisterRoutes(apiV1)

	// Waiting-room board WebSocket
	board.NewHandler(hub, queueSvc, logger).RegisterRoutes(e)

	// Patient-facing chatbot
	if cfg.OpenAIAPIKey != "" {
		llm := chatbot.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.ChatbotModel)
		chatbotSvc := chatbot.NewService(llm, metrics, logger)
		chatbot.NewHandler(chatbotSvc).RegisterRoutes(apiV1)
		logger.Info().Str("model", cfg.ChatbotModel).Msg("chatbot enabled")
	}

	if forwarder != nil {
		integrations.NewHandler(forwarder, deliveryLog).RegisterRoutes(apiV1)
	}

	// Metrics and health
	e.GET("/metrics", metrics.Handler())
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func integrationTargets(cfg *config.Config) []integrations.Target {
	var targets []integrations.Target
	if cfg.AirtableHook != "" {
		targets = append(targets, integrations.Target{Name: "airtable", URL: cfg.AirtableHook, Events: []string{"queue.check_in", "queue.transition"}})
	}
	if cfg.NotionHook != "" {
		targets = append(targets, integrations.Target{Name: "notion", URL: cfg.NotionHook, Events: []string{"encounter.opened", "encounter.updated"}})
	}
	if cfg.ThreeCXHook != "" {
		targets = append(targets, integrations.Target{Name: "3cx", URL: cfg.ThreeCXHook, Events: []string{"queue.check_in"}})
	}
	if cfg.N8NHook != "" {
		targets = append(targets, integrations.Target{Name: "n8n", URL: cfg.N8NHook, Events: []string{"*"}})
	}
	return targets
}
