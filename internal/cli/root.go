package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sbenjam1n/lpms/internal/config"
	"github.com/sbenjam1n/lpms/internal/db"
	"github.com/sbenjam1n/lpms/internal/logger"
	"github.com/sbenjam1n/lpms/internal/queue"
	"github.com/sbenjam1n/lpms/internal/roles"
	"github.com/sbenjam1n/lpms/internal/store"
	"github.com/spf13/cobra"
)

var (
	cfg      *config.Config
	debug    bool
	jsonOut  bool
	noEvents bool

	rootCmd = &cobra.Command{
		Use:   "lpms",
		Short: "Parties, lawyers and who represents whom, per case",
		Long: `lpms keeps the representation graph of a law practice: contacts, cases,
the roles contacts play in each case, and the attorneys that represent them,
including one attorney representing several parties at once.

Typical session:
  lpms migrate
  lpms contact add --name "Juan Pérez"
  lpms case open --caption "Pérez c/ ACME SA s/ daños"
  lpms role add --case 1 --contact 1 --capacity Actor
  lpms multi create --case 1 --contact 3 --parties 1,2
  lpms audit validate --case 1`,
		SilenceUsage: true,
	}
)

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().BoolVar(&noEvents, "no-events", false, "Do not publish role events to Redis")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(contactCmd)
	rootCmd.AddCommand(caseCmd)
	rootCmd.AddCommand(roleCmd)
	rootCmd.AddCommand(multiCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(legacyCmd)
}

func initConfig() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if debug {
		cfg.Debug = true
	}
}

func newLogger() *log.Logger {
	return logger.New(logger.Options{Debug: cfg.Debug, JSON: cfg.LogJSON, Prefix: "lpms"})
}

func connectDB(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w\nSet LPMS_DATABASE_URL environment variable", err)
	}
	return pool, nil
}

func connectRedis() (*redis.Client, error) {
	rdb, err := queue.ConnectRedis(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("%w\nSet LPMS_REDIS_URL environment variable", err)
	}
	return rdb, nil
}

// session bundles the connections one command needs.
type session struct {
	pool   *pgxpool.Pool
	rdb    *redis.Client
	store  store.Store
	logger *log.Logger
}

func (s *session) Close() {
	if s.rdb != nil {
		s.rdb.Close()
	}
	s.pool.Close()
}

// openSession connects to PostgreSQL and, unless --no-events is set, to the
// Redis stream the roles service publishes to.
func openSession(ctx context.Context) (*session, error) {
	pool, err := connectDB(ctx)
	if err != nil {
		return nil, err
	}
	s := &session{pool: pool, store: storeFor(pool), logger: newLogger()}
	if !noEvents {
		rdb, err := connectRedis()
		if err != nil {
			pool.Close()
			return nil, err
		}
		s.rdb = rdb
	}
	return s, nil
}

func storeFor(pool *pgxpool.Pool) store.Store {
	return store.NewPostgresStore(pool)
}

func (s *session) service() *roles.Service {
	var opts []roles.Option
	if s.rdb != nil {
		opts = append(opts, roles.WithEvents(queue.New(s.rdb)))
	}
	return roles.New(s.store, s.logger, opts...)
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalID(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}
