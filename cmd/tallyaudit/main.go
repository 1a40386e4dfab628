package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/vncsmyrnk/ballot/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/ballot/internal/config"
	"github.com/vncsmyrnk/ballot/internal/core/services"
)

// Recounts the recorded ballots of every poll against the stored tallies.
// Exits 1 when any poll drifted, 2 when the audit could not run.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	pg := config.PostgresFromEnv()
	timeout := flag.Duration("timeout", 5*time.Minute, "Maximum audit duration")
	flag.StringVar(&pg.Host, "db-host", pg.Host, "Database host")
	flag.StringVar(&pg.Port, "db-port", pg.Port, "Database port")
	flag.StringVar(&pg.User, "db-user", pg.User, "Database user")
	flag.StringVar(&pg.Password, "db-pass", pg.Password, "Database password")
	flag.StringVar(&pg.DB, "db-name", pg.DB, "Database name")
	flag.Parse()

	os.Exit(run(logger, pg, *timeout))
}

func run(logger *slog.Logger, pg config.Postgres, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := postgres.Open(ctx, pg.ConnString())
	if err != nil {
		logger.Error("failed to connect", "error", err)
		return 2
	}
	defer db.Close()

	votes := postgres.NewVoteRepository(db)
	audit := services.NewAuditService(postgres.NewPollRepository(db), votes, services.WithLogger(logger))

	logger.Info("starting tally audit")
	drifts, err := audit.AuditAll(ctx)
	if err != nil {
		logger.Error("tally audit failed", "error", err)
		return 2
	}

	for _, d := range drifts {
		logger.Error("tally drift", "poll_id", d.PollID, "reason", d.Reason, "voters", d.VoterCount, "stored", d.Stored, "recounted", d.Recounted)
	}
	if len(drifts) > 0 {
		return 1
	}
	logger.Info("tally audit completed", "drifts", 0)
	return 0
}
