package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"net/mail"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/julez-dev/encore/event"
	"github.com/julez-dev/encore/httputil"
	"github.com/julez-dev/encore/save"
	"github.com/julez-dev/encore/server"
	"github.com/julez-dev/encore/session"
	"github.com/julez-dev/encore/trovo"
	"github.com/julez-dev/encore/twitch"
)

const (
	defaultClientID = "q6nmjliq1dx4iacp0uh5ofang7yd9j"
	logFileName     = "log.txt"
	statsFileName   = "stats.db"
)

func main() {
	f, err := setupLogFile()
	if err != nil {
		fmt.Println("error while opening log file:", err)
		os.Exit(1)
	}

	defer func() {
		_ = f.Close()
	}()

	logger := zerolog.New(f).With().Timestamp().Logger()
	log.Logger = logger

	app := &cli.Command{
		Name:        "Encore",
		Description: "Encore stream companion",
		Usage:       "Reacts to Twitch and Trovo channel events with commands, alerts and statistics",
		Authors: []any{
			&mail.Address{
				Name:    "julez-dev",
				Address: "julez-dev@pm.me",
			},
		},
		Commands: []*cli.Command{
			versionCMD,
			accountCMD,
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "client-id",
				Usage:   "Twitch OAuth Client-ID",
				Value:   defaultClientID,
				Sources: cli.EnvVars("ENCORE_CLIENT_ID"),
			},
			&cli.StringFlag{
				Name:    "client-secret",
				Usage:   "Twitch OAuth Client-Secret, used to refresh expired tokens",
				Sources: cli.EnvVars("ENCORE_CLIENT_SECRET"),
			},
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Twitch channel to watch, defaults to the main account's channel",
			},
			&cli.StringFlag{
				Name:    "trovo-client-id",
				Usage:   "Trovo Open Platform Client-ID",
				Sources: cli.EnvVars("ENCORE_TROVO_CLIENT_ID"),
			},
			&cli.StringFlag{
				Name:  "trovo-account-id",
				Usage: "Account used for the Trovo chat connection, empty disables Trovo",
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address backing the local API rate limiter, empty disables rate limiting",
				Sources: cli.EnvVars("ENCORE_REDIS_ADDR"),
			},
			&cli.BoolFlag{
				Name:  "plain-credentials",
				Usage: "Store credentials in a plain file instead of the system keyring",
			},
			&cli.BoolFlag{
				Name:  "enable-profiling",
				Usage: "If profiling should be enabled",
				Value: false,
			},
			&cli.StringFlag{
				Name:  "profiling-host",
				Usage: "Host of the profiling http server",
				Value: "0.0.0.0:6060",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Bool("enable-profiling") {
				runProfilingServer(ctx, logger, command.String("profiling-host"))
			}

			// Override the default http client transport to log requests
			http.DefaultClient.Transport = httputil.NewLoggingRoundTrip(http.DefaultClient.Transport, logger, Version)

			return runSession(ctx, logger, command)
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Printf("error while running Encore: %v\n", err)
		os.Exit(1)
	}
}

func runSession(ctx context.Context, logger zerolog.Logger, command *cli.Command) error {
	fs := afero.NewOsFs()

	settings, err := save.SettingsFromDisk(fs)
	if err != nil {
		return fmt.Errorf("error while reading settings: %w", err)
	}

	accounts := save.NewAccountProvider(credentialStore(command, fs))

	mainAccount, err := accounts.GetMainAccount()
	if err != nil {
		return fmt.Errorf("no main account configured, add one with 'encore account add': %w", err)
	}

	refresher := twitch.NewRefresher(http.DefaultClient, command.String("client-id"), command.String("client-secret"))
	ttvAPI, err := twitch.NewAPI(command.String("client-id"),
		twitch.WithUserAuthentication(accounts, refresher, mainAccount.ID),
		twitch.WithClientSecret(command.String("client-secret")),
	)
	if err != nil {
		return fmt.Errorf("error while creating twitch client: %w", err)
	}

	channel := command.String("channel")
	if channel == "" {
		channel = mainAccount.DisplayName
	}

	userResp, err := ttvAPI.GetUsers(ctx, []string{channel}, nil)
	if err != nil {
		return fmt.Errorf("error while resolving channel %s: %w", channel, err)
	}

	if len(userResp.Data) == 0 {
		return fmt.Errorf("channel %s does not exist", channel)
	}

	channelID := userResp.Data[0].ID

	var trovoAPI *trovo.API
	if accountID := command.String("trovo-account-id"); accountID != "" {
		trovoAPI = trovo.NewAPI(command.String("trovo-client-id"), accounts, accountID)
	}

	options := session.Options{
		Settings:        settings,
		Accounts:        accounts,
		TwitchAPI:       ttvAPI,
		TwitchAccountID: mainAccount.ID,
		TwitchChannel:   channel,
		TwitchChannelID: channelID,
		TrovoAPI:        trovoAPI,
	}

	if settings.Statistics.StoreEvents {
		db, roDB, err := openStatsDatabase()
		if err != nil {
			return fmt.Errorf("error while opening statistics database: %w", err)
		}

		defer db.Close()
		defer roDB.Close()

		options.StatsDB = db
		options.StatsReadDB = roDB
	}

	sess, err := session.New(logger, options)
	if err != nil {
		return fmt.Errorf("error while creating session: %w", err)
	}

	limiter, closeStore, err := buildRateLimiter(ctx, command, settings)
	if err != nil {
		return err
	}

	defer closeStore()

	var statistics server.StatsSource = nopStats{}
	if sess.Stats() != nil {
		statistics = sess.Stats()
	}

	srv := server.New(logger, server.Config{HostAndPort: settings.Server.Addr}, sess.Alerts(), statistics, sess, limiter)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return sess.Run(ctx)
	})

	group.Go(func() error {
		return srv.Launch(ctx)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

func credentialStore(command *cli.Command, fs afero.Fs) keyring.Keyring {
	if command.Bool("plain-credentials") {
		return save.NewPlainKeyringFallback(fs)
	}

	return save.NewKeyringWrapper()
}

func buildRateLimiter(ctx context.Context, command *cli.Command, settings save.Settings) (*server.RateLimiter, func(), error) {
	addr := command.String("redis-addr")
	if addr == "" || settings.Server.RateLimitPerMinute <= 0 {
		store := server.NewNopRedisClient()
		return server.NewRateLimiter(store, settings.Server.RateLimitPerMinute), func() {}, nil
	}

	store, err := server.NewRedisClient(ctx, server.RedisConfig{Addr: addr})
	if err != nil {
		return nil, nil, fmt.Errorf("error while connecting to redis: %w", err)
	}

	return server.NewRateLimiter(store, settings.Server.RateLimitPerMinute), func() { _ = store.Close() }, nil
}

// openStatsDatabase opens the SQLite statistics file twice, once for the
// batched writer and once read-only for queries, so reads never queue
// behind a batch insert.
func openStatsDatabase() (*sql.DB, *sql.DB, error) {
	if err := os.MkdirAll(save.DataDir(), 0o755); err != nil {
		return nil, nil, err
	}

	path := filepath.Join(save.DataDir(), statsFileName)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, err
	}

	db.SetMaxOpenConns(1)

	roDB, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	return db, roDB, nil
}

type nopStats struct{}

func (nopStats) CountByKind() (map[event.Kind]int, error) {
	return map[event.Kind]int{}, nil
}

func runProfilingServer(ctx context.Context, logger zerolog.Logger, host string) {
	srv := &http.Server{
		Addr: host,
	}

	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		logger.Info().Msg("shutting down profiling server")
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("error while shutting down profiling server")
			os.Exit(1)
		}
	}()

	go func() {
		logger.Info().Str("host", host).Msg("running profiling server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("error while running profiling server: %v", err)
			logger.Error().Err(err).Msg("error while running profiling server")
			os.Exit(1)
		}
	}()
}

func setupLogFile() (*os.File, error) {
	f, err := os.OpenFile(logFileName, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	return f, nil
}
