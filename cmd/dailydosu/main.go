// Command dailydosu runs the daily-dosu-go daemon: it loads configuration,
// wires the four core subsystems (upstream clients, token manager, stores,
// pipelines), starts the admin HTTP surface, and schedules the two daily
// jobs until terminated.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/mbalsdon/daily-dosu-go/internal/adminserver"
	"github.com/mbalsdon/daily-dosu-go/internal/config"
	"github.com/mbalsdon/daily-dosu-go/internal/httpclient"
	"github.com/mbalsdon/daily-dosu-go/internal/logging"
	"github.com/mbalsdon/daily-dosu-go/internal/metrics"
	"github.com/mbalsdon/daily-dosu-go/internal/notify"
	"github.com/mbalsdon/daily-dosu-go/internal/osuapi"
	"github.com/mbalsdon/daily-dosu-go/internal/osutrack"
	"github.com/mbalsdon/daily-dosu-go/internal/rankings"
	"github.com/mbalsdon/daily-dosu-go/internal/scheduler"
	"github.com/mbalsdon/daily-dosu-go/internal/store"
	"github.com/mbalsdon/daily-dosu-go/internal/token"
	"github.com/mbalsdon/daily-dosu-go/internal/topplays"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the daemon's JSON config file")
	flag.Parse()

	log.Printf("dailydosu: GOMAXPROCS %d (automaxprocs)", runtime.GOMAXPROCS(0))

	cfg, err := config.Load(*configPath)
	if err != nil {
		if err == config.ErrFirstRunSetupComplete {
			log.Printf("dailydosu: wrote initial config to %s, restart to continue", *configPath)
			return
		}
		log.Fatalf("dailydosu: load config: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogAnsiColors)
	logger.Info().Str("config", *configPath).Int("threadCount", cfg.ThreadCount).Msg("starting daily-dosu-go")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rankingsDB, err := store.OpenRankings(cfg.RankingsDbFilePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open rankings store")
	}
	defer rankingsDB.Close()
	rankingsStore := store.NewRankingsStore(rankingsDB, cfg.RankingsDbFilePath)

	topPlaysDB, err := store.OpenTopPlays(cfg.TopPlaysDbFilePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open top-plays store")
	}
	defer topPlaysDB.Close()
	topPlaysStore := store.NewTopPlaysStore(topPlaysDB)

	subsDB, err := store.OpenSubscriptions(cfg.BotConfigDbFilePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open subscriptions store")
	}
	defer subsDB.Close()
	subsStore := store.NewSubscriptionsStore(subsDB)

	tokens := token.New(cfg.OsuClientID, cfg.OsuClientSecret, httpclient.New(), logger.With().Str("component", "token").Logger())
	if err := tokens.UpdateAccessToken(ctx); err != nil {
		logger.Fatal().Err(err).Msg("initial token fetch")
	}
	go tokens.RunPreemptiveRefresh(ctx)

	var publisher notify.Publisher
	if cfg.NotifyNatsURL == "" {
		publisher = notify.NewNoopPublisher(subsStore, logger.With().Str("component", "notify").Logger())
	} else {
		natsPub, err := notify.NewNatsPublisher(cfg.NotifyNatsURL, cfg.NotifySubjectBase, subsStore, logger.With().Str("component", "notify").Logger())
		if err != nil {
			logger.Fatal().Err(err).Msg("connect notify publisher")
		}
		defer natsPub.Close()
		publisher = natsPub
	}

	admin := adminserver.New(metrics.Registry(), logger.With().Str("component", "admin").Logger())
	admin.Start(cfg.AdminListenAddr)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("admin server shutdown")
		}
	}()

	rankingsClientFor := func() rankings.RankingsClient {
		return osuapi.New(httpclient.New(), tokens, 0, logger.With().Str("component", "osuapi").Logger())
	}
	rankingsPipeline := rankings.New(rankingsStore, rankingsClientFor, cfg.ThreadCount, logger.With().Str("pipeline", "rankings").Logger())

	trackClientFor := func() topplays.TrackClient {
		return osutrack.New(httpclient.New(), time.Second, logger.With().Str("component", "osutrack").Logger())
	}
	apiClientFor := func() topplays.ApiClient {
		return osuapi.New(httpclient.New(), tokens, 0, logger.With().Str("component", "osuapi").Logger())
	}
	topPlaysPipeline := topplays.New(topPlaysStore, trackClientFor, apiClientFor, cfg.ThreadCount, nil, logger.With().Str("pipeline", "topPlays").Logger())

	rankingsJob := scheduler.New("rankings", cfg.ScrapeRankingsRunHour, func(ctx context.Context) error {
		start := time.Now()
		err := rankingsPipeline.Run(ctx)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.PipelineRunDuration.WithLabelValues("rankings", outcome).Observe(time.Since(start).Seconds())
		admin.Broadcast(adminserver.Event{Job: "rankings", Status: outcome, Timestamp: time.Now()})
		return err
	}, func(ctx context.Context) {
		if err := publisher.OnScrapeRankingsComplete(ctx); err != nil {
			logger.Warn().Err(err).Msg("rankings completion publish failed")
		}
	}, logger.With().Str("component", "scheduler").Logger())

	topPlaysJob := scheduler.New("topPlays", cfg.TopPlaysRunHour, func(ctx context.Context) error {
		start := time.Now()
		err := topPlaysPipeline.Run(ctx)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.PipelineRunDuration.WithLabelValues("topPlays", outcome).Observe(time.Since(start).Seconds())
		admin.Broadcast(adminserver.Event{Job: "topPlays", Status: outcome, Timestamp: time.Now()})
		return err
	}, func(ctx context.Context) {
		if err := publisher.OnTopPlaysComplete(ctx); err != nil {
			logger.Warn().Err(err).Msg("top-plays completion publish failed")
		}
	}, logger.With().Str("component", "scheduler").Logger())

	if err := rankingsJob.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start rankings job")
	}
	if err := topPlaysJob.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start top-plays job")
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, waiting for in-flight jobs")
	<-rankingsJob.Stop().Done()
	<-topPlaysJob.Stop().Done()
	logger.Info().Msg("daily-dosu-go stopped")
}
