package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/datafire-practice/patient-registry-backend/internal/config"
	"github.com/datafire-practice/patient-registry-backend/internal/domain/dictionary"
	"github.com/datafire-practice/patient-registry-backend/internal/domain/registry"
	"github.com/datafire-practice/patient-registry-backend/internal/platform/db"
	"github.com/datafire-practice/patient-registry-backend/internal/platform/metrics"
	"github.com/datafire-practice/patient-registry-backend/internal/platform/middleware"
	"github.com/datafire-practice/patient-registry-backend/migrations"
)

const (
	version         = "0.1.0"
	shutdownTimeout = 10 * time.Second
	cleanupInterval = time.Minute
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "registry-server",
		Short:         "Patient registry API server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(dictionaryCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the registry API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// loadConfig loads and validates configuration for every subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout)
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Str("service", "registry").Logger()
}

func openPool(cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

// -- migrate --

func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
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

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := openPool(cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationFiles(dir), schema)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the built-in set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pool, err := openPool(cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFiles(dir), schema).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd, schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the built-in set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(cmd *cobra.Command, schema string, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// -- dictionary --

func dictionaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dictionary",
		Short: "Maintain the MKB-10 diagnosis dictionary",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Fetch, validate and store the dictionary once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			pool, err := openPool(cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, _, err := buildDictionary(cfg, pool, logger, nil)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Dictionary.SyncTimeout)
			defer cancel()

			res, err := svc.SyncNow(ctx)
			if res != nil {
				printSyncResult(cmd, res)
			}
			return err
		},
	})

	parseCmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a local CSV file and report what a sync would accept",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			schemaName, _ := cmd.Flags().GetString("schema")
			show, _ := cmd.Flags().GetInt("show")
			return parseFile(cmd, path, schemaName, show)
		},
	}
	parseCmd.Flags().String("file", "", "CSV file to parse")
	parseCmd.Flags().String("schema", "mkb10", "Column layout: mkb10 or plain")
	parseCmd.Flags().Int("show", 5, "Number of accepted entries to print")
	_ = parseCmd.MarkFlagRequired("file")
	cmd.AddCommand(parseCmd)

	return cmd
}

func parseFile(cmd *cobra.Command, path, schemaName string, show int) error {
	schema, err := dictionary.SchemaByName(schemaName)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	entries, stats, err := dictionary.NewParser(schema).Parse(f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "rows=%d accepted=%d short=%d invalid=%d duplicates=%d\n",
		stats.Rows, stats.Accepted, stats.Short, stats.Invalid, stats.Duplicates)
	for i := 0; i < len(entries) && i < show; i++ {
		fmt.Fprintf(out, "%-8s %s\n", entries[i].Code, entries[i].Name)
	}
	if len(entries) == 0 {
		return errors.New("no valid entries: a sync would leave the dictionary unchanged")
	}
	return nil
}

func printSyncResult(cmd *cobra.Command, res *dictionary.SyncResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "outcome=%s updated=%d origin=%s accepted=%d invalid=%d\n",
		res.Outcome, res.Updated, res.Origin, res.Parse.Accepted, res.Parse.Invalid)
	if res.Error != "" {
		fmt.Fprintf(out, "error: %s\n", res.Error)
	}
}

// buildDictionary wires the dictionary service. rec may be nil.
func buildDictionary(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger, rec dictionary.Recorder) (*dictionary.Service, *dictionary.LookupCache, error) {
	dc := cfg.Dictionary
	schema, err := dictionary.SchemaByName(dc.Schema)
	if err != nil {
		return nil, nil, err
	}
	cache, err := dictionary.NewLookupCache(dictionary.CacheConfig{
		MaxEntries: dc.CacheMaxItems,
		WriteTTL:   dc.CacheWriteTTL,
		AccessTTL:  dc.CacheAccessTTL,
	})
	if err != nil {
		return nil, nil, err
	}

	dlog := logger.With().Str("component", "dictionary").Logger()
	source := dictionary.NewHTTPSource(dictionary.SourceConfig{
		URL:          dc.SourceURL,
		Timeout:      dc.FetchTimeout,
		FallbackPath: dc.FallbackPath,
	}, dlog)

	var opts []dictionary.Option
	if rec != nil {
		opts = append(opts, dictionary.WithRecorder(rec))
	}
	svc := dictionary.NewService(dictionary.NewRepoPG(pool), source, dictionary.NewParser(schema), cache, dlog, opts...)
	return svc, cache, nil
}

// -- serve --

type services struct {
	dictionary *dictionary.Service
	registry   *registry.Service
}

// dictionaryLoaded fails until the first sync has written entries.
func dictionaryLoaded(svc *dictionary.Service) db.Check {
	return func(ctx context.Context) error {
		st, err := svc.Status(ctx)
		if err != nil {
			return err
		}
		if st.Entries == 0 {
			return errors.New("dictionary not loaded")
		}
		return nil
	}
}

// newEcho builds the HTTP server with its middleware chain and routes.
func newEcho(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, m *metrics.Collector, svc services) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderXRequestID},
		ExposeHeaders: []string{echo.HeaderXRequestID},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/api/v1/dictionary/update"))

	e.GET("/health", db.LivenessHandler())
	e.GET("/health/db", db.HealthHandler(pool, map[string]db.Check{
		"dictionary": dictionaryLoaded(svc.dictionary),
	}))
	e.GET("/metrics", m.EchoHandler())

	apiV1 := e.Group("/api/v1", middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	dictionary.NewHandler(svc.dictionary, cfg.Dictionary.SyncTimeout).RegisterRoutes(apiV1)
	registry.NewHandler(svc.registry).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	pool, err := openPool(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	collector := metrics.NewCollector()
	dictSvc, cache, err := buildDictionary(cfg, pool, logger, collector)
	if err != nil {
		return err
	}
	regSvc := registry.NewService(registry.NewPatientRepo(pool), registry.NewDiseaseRepo(pool), dictSvc)

	scheduler, err := dictionary.NewScheduler(dictSvc, cfg.Dictionary.SyncCron, cfg.Dictionary.SyncTimeout,
		logger.With().Str("component", "dictionary-scheduler").Logger())
	if err != nil {
		return err
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	cache.StartCleanup(bgCtx, cleanupInterval)
	scheduler.Start()
	if cfg.Dictionary.SyncOnStartup {
		scheduler.Trigger()
	}

	e := newEcho(cfg, logger, pool, collector, services{dictionary: dictSvc, registry: regSvc})

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down server")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server error")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		awaitSyncs(ctx, scheduler.Stop(), logger)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	syncDone := scheduler.Stop()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	awaitSyncs(ctx, syncDone, logger)
	logger.Info().Msg("server stopped")
	return nil
}

// awaitSyncs blocks until every dictionary sync has finished or ctx ends.
// Runs still holding pool connections would otherwise stall pool.Close.
func awaitSyncs(ctx context.Context, done context.Context, logger zerolog.Logger) {
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Warn().Msg("dictionary sync still running at shutdown")
	}
}
