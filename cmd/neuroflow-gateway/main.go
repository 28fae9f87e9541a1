package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/davidahmann/neuroflow/internal/analysis"
	"github.com/davidahmann/neuroflow/internal/api"
	"github.com/davidahmann/neuroflow/internal/auth"
	"github.com/davidahmann/neuroflow/internal/config"
	"github.com/davidahmann/neuroflow/internal/decision"
	"github.com/davidahmann/neuroflow/internal/gamification"
	"github.com/davidahmann/neuroflow/internal/realtime"
	"github.com/davidahmann/neuroflow/internal/store"
	"github.com/davidahmann/neuroflow/internal/store/pgstore"
	"github.com/davidahmann/neuroflow/internal/store/sqlstore"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

type envFn func(string) string
type listenFn func(*http.Server) error
type serverFactory func(cfg config.Config, logger *zap.Logger) (*http.Server, func(), error)

func run(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("neuroflow-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to neuroflow config file")
	envFile := fs.String("env-file", ".env", "dotenv file to read before resolving settings")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dotenv, dotenvErr := godotenv.Read(*envFile)
	if dotenvErr != nil {
		dotenv = map[string]string{}
	}
	lookup := func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = lookup("NEUROFLOW_CONFIG_PATH")
	}

	var cfg config.Config
	if cfgFile != "" {
		loaded, err := config.LoadWithLookup(cfgFile, lookup)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg, err := cfg.Resolve(lookup)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if dotenvErr != nil && !errors.Is(dotenvErr, os.ErrNotExist) {
		logger.Warn("could not read env file", zap.String("path", *envFile), zap.Error(dotenvErr))
	}

	server, cleanup, err := factory(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("neuroflow-gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("db_driver", cfg.DB.Driver),
		zap.Bool("ai_configured", cfg.Gemini.APIKey != ""),
	)
	if err := listen(server); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func newServer(cfg config.Config, logger *zap.Logger) (*http.Server, func(), error) {
	st, closeStore, err := openStore(cfg.DB)
	if err != nil {
		return nil, nil, err
	}

	analyzer, err := newAnalyzer(cfg.Gemini, logger)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	hub := realtime.NewHub(logger.Named("realtime"))
	profiles, err := gamification.NewService(gamification.NewServiceInput{Store: st, Logger: logger.Named("gamification")})
	if err != nil {
		hub.Close()
		closeStore()
		return nil, nil, err
	}
	decisions, err := decision.NewService(decision.NewServiceInput{
		Store:    st,
		Analyzer: analyzer,
		Points:   profiles,
		Hub:      hub,
		Logger:   logger.Named("decision"),
	})
	if err != nil {
		hub.Close()
		closeStore()
		return nil, nil, err
	}

	tokens := make(map[string]auth.TokenUser, len(cfg.Auth.Tokens))
	for token, user := range cfg.Auth.Tokens {
		tokens[token] = auth.TokenUser{UserID: user.UserID, Email: user.Email}
	}

	h := &api.Handler{
		Auth:      auth.NewAuthenticator(cfg.Auth.DevToken, cfg.Auth.DevUser, tokens),
		Decisions: decisions,
		Profiles:  profiles,
		Hub:       hub,
		AI:        analyzer,
		Logger:    logger.Named("api"),
	}
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}
	cleanup := func() {
		hub.Close()
		closeStore()
	}
	return server, cleanup, nil
}

func openStore(cfg config.DBConfig) (store.Store, func(), error) {
	switch store.DBDriver(cfg.Driver) {
	case "", store.DBMemory:
		return store.NewInMemoryStore(), func() {}, nil
	case store.DBSQLite:
		s, err := sqlstore.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := store.Migrate(s.DB(), store.DBSQLite); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case store.DBPostgres:
		s, err := pgstore.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.Migrate(s.DB(), store.DBPostgres); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported db driver: %s", cfg.Driver)
	}
}

// newAnalyzer builds the analysis pipeline. Without an API key every analysis
// uses the fallback payloads.
func newAnalyzer(cfg config.GeminiConfig, logger *zap.Logger) (*analysis.Analyzer, error) {
	prompts, err := analysis.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	var gen analysis.Generator
	if cfg.APIKey != "" {
		client, err := analysis.NewGenAIGenerator(context.Background(), cfg.APIKey, cfg.Model, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		gen = client
	}
	return analysis.NewAnalyzer(gen, prompts, logger.Named("analysis")), nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(firstNonEmpty(cfg.Level, "info")))
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
