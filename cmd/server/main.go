package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	rediscache "github.com/vncsmyrnk/ballot/internal/adapters/cache/redis"
	"github.com/vncsmyrnk/ballot/internal/adapters/handler/http"
	"github.com/vncsmyrnk/ballot/internal/adapters/oauth/google"
	"github.com/vncsmyrnk/ballot/internal/adapters/repository/memory"
	"github.com/vncsmyrnk/ballot/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/ballot/internal/adapters/token"
	"github.com/vncsmyrnk/ballot/internal/config"
	"github.com/vncsmyrnk/ballot/internal/core/ports"
	"github.com/vncsmyrnk/ballot/internal/core/services"
	"github.com/vncsmyrnk/ballot/internal/metrics"
)

type repositories struct {
	polls    ports.PollRepository
	votes    ports.VoteRepository
	comments ports.CommentRepository
	users    ports.UserRepository
	auth     ports.AuthRepository
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	repos, closeRepos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepos()

	redisClient, err := rediscache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	var cache ports.ResultsCache
	if redisClient != nil {
		defer redisClient.Close()
		cache = rediscache.NewResultsCache(redisClient)
		logger.Info("results cache enabled", "ttl", rediscache.DefaultTTL)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	opts := []services.Option{services.WithMetrics(m), services.WithLogger(logger)}

	jwt := token.NewJWT(cfg.JWTSecret)
	pollService := services.NewPollService(repos.polls, repos.comments, repos.users, opts...)
	voteService := services.NewVoteService(repos.polls, repos.votes, cache, opts...)
	resultsService := services.NewResultsService(repos.polls, repos.comments, repos.users, cache, opts...)
	userService := services.NewUserService(repos.users)
	authService := services.NewAuthService(repos.users, repos.auth, google.NewVerifier(), jwt, cfg.GoogleClientID, opts...)

	handler := http.NewHandler(http.Routes{
		Polls:          http.NewPollHandler(pollService),
		Votes:          http.NewVoteHandler(voteService),
		Results:        http.NewResultsHandler(resultsService),
		Users:          http.NewUserHandler(userService),
		Auth:           http.NewAuthHandler(authService, cfg.RedirectURL, cfg.CookieDomain, cfg.CookieSameSite),
		Authenticator:  jwt,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		AllowedOrigins: cfg.AllowedOrigins,
	})

	server := &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(handler, "ballot"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr, "store", cfg.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("gracefully shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openRepositories(ctx context.Context, cfg config.Config, logger *slog.Logger) (repositories, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using the in-memory store; data is lost on restart")
		store := memory.NewStore()
		users := memory.NewUserStore()
		return repositories{polls: store, votes: store, comments: store, users: users, auth: users}, func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.Postgres.ConnString())
	if err != nil {
		return repositories{}, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return repositories{}, nil, err
	}
	return postgresRepositories(db), func() { db.Close() }, nil
}

func postgresRepositories(db *sql.DB) repositories {
	return repositories{
		polls:    postgres.NewPollRepository(db),
		votes:    postgres.NewVoteRepository(db),
		comments: postgres.NewCommentRepository(db),
		users:    postgres.NewUserRepository(db),
		auth:     postgres.NewAuthRepository(db),
	}
}
