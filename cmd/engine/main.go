package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jose-valero/ranked-engine/internal/adapters/discordnotify"
	"github.com/jose-valero/ranked-engine/internal/adapters/eventlog"
	"github.com/jose-valero/ranked-engine/internal/adapters/httpapi"
	"github.com/jose-valero/ranked-engine/internal/adapters/matchserver"
	"github.com/jose-valero/ranked-engine/internal/adapters/profile"
	"github.com/jose-valero/ranked-engine/internal/app/service"
	"github.com/jose-valero/ranked-engine/internal/infra/config"
	"github.com/jose-valero/ranked-engine/internal/infra/memqueue"
	"github.com/jose-valero/ranked-engine/internal/infra/storage"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()
	if err := storage.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	log.Info().Msg("db ready and migrated")

	// Repos
	ratingRepo := storage.NewRatingRepo(db)
	resultRepo := storage.NewResultRepo(db)
	penaltyRepo := storage.NewPenaltyRepo(db)
	flagRepo := storage.NewFlagRepo(db)

	// External clients
	profiles := profile.New(cfg.ProfileAPIKey, profile.WithBaseURL(cfg.ProfileBaseURL))
	matches := matchserver.New(cfg.MatchServerAPIKey, matchserver.WithBaseURL(cfg.MatchServerBaseURL))

	// Notifier fanout: structured event log always, Discord moderation
	// channel when configured.
	notifier := eventlog.Fanout{eventlog.New(log)}
	if cfg.DiscordToken != "" && cfg.DiscordModChannelID != "" {
		auth := cfg.DiscordToken
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(auth)), "bot ") {
			auth = "Bot " + strings.TrimSpace(auth)
		}
		session, err := discordgo.New(auth)
		if err != nil {
			log.Fatal().Err(err).Msg("discord session")
		}
		if err := session.Open(); err != nil {
			log.Fatal().Err(err).Msg("discord open")
		}
		defer session.Close()
		notifier = append(notifier, discordnotify.New(session, cfg.DiscordModChannelID, log))
		log.Info().Msg("discord moderation notifier enabled")
	}

	// Services
	curve := service.SearchCurve{
		Base:       cfg.SearchRangeBase,
		Step:       cfg.SearchRangeStep,
		Max:        cfg.SearchRangeMax,
		WidenEvery: cfg.SearchWidenEvery,
	}
	pool := memqueue.New(500)
	limiter := memqueue.NewLimiter(cfg.EnqueueRateWindow)

	queueSvc := service.NewQueueService(profiles, penaltyRepo, pool, limiter, notifier, curve, log)
	readySvc := service.NewReadyCheckService(pool, queueSvc, matches, notifier, cfg.ReadyCheckSeconds, cfg.DeclineCooldown, log)
	proposerSvc := service.NewProposerService(pool, readySvc, curve, cfg.RoleRequirements, cfg.PriorityPerTick, cfg.TickInterval, log)
	smurfSvc := service.NewSmurfService(ratingRepo, flagRepo, profiles, notifier, service.SmurfWeights{
		WinRate:  cfg.SmurfWinRateWeight,
		Velocity: cfg.SmurfVelocityWeight,
		Age:      cfg.SmurfAgeWeight,
	}, cfg.SmurfThreshold, cfg.SmurfWindowGames, log)
	ratingSvc := service.NewRatingService(ratingRepo, resultRepo, smurfSvc, notifier, cfg.Season, log)
	decaySvc := service.NewDecayService(ratingRepo, notifier, cfg.DecayRules, cfg.DecaySweepInterval, log)

	// Results accepted by the ingest lambda while we were down.
	if n, err := ratingSvc.DrainStored(ctx, 500); err != nil {
		log.Warn().Err(err).Msg("drain stored results")
	} else if n > 0 {
		log.Info().Int("applied", n).Msg("drained stored results")
	}

	api := httpapi.New(queueSvc, readySvc, ratingSvc, cfg.IngestSecret, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return proposerSvc.Run(gctx) })
	g.Go(func() error { return decaySvc.Run(gctx) })
	g.Go(func() error { return api.Start(gctx, cfg.HTTPAddr) })
	g.Go(func() error {
		// Penalty table housekeeping.
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-t.C:
				if _, err := penaltyRepo.PruneExpired(gctx); err != nil {
					log.Warn().Err(err).Msg("prune penalties")
				}
			}
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("engine stopped")
	}
	log.Info().Msg("engine shut down")
}
