package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"contest-settlement/internal/app"
	"contest-settlement/internal/config"
	"contest-settlement/internal/infra/memory"
	pgstore "contest-settlement/internal/infra/postgres"
	"contest-settlement/internal/infra/rabbitmq"
	redisstore "contest-settlement/internal/infra/redis"
	"contest-settlement/internal/ledger"
	"contest-settlement/internal/payout"
	transport "contest-settlement/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the settlement server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logs, err := newLogBackend(cfg.Log.Level)
	if err != nil {
		return err
	}
	log := logs.Logger("CLI")

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var (
		pool  *pgxpool.Pool
		bunDB *bun.DB
	)
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		bunDB = openBunDB(cfg.Postgres.URL)
		defer bunDB.Close()
	}

	var keyStore memory.AnswerKeyStore = memory.NewStaticAnswerKeys(nil)
	if pool != nil {
		keyStore = pgstore.NewAnswerKeyStore(pool)
	}

	keyTTL := config.TTLDuration(cfg.AnswerKeys.TTL, 10*time.Minute)
	var keys app.AnswerKeyRepository
	if redisClient != nil {
		keys = redisstore.NewAnswerKeyRepository(redisClient, keyStore, keyTTL)
	} else {
		keys = memory.NewAnswerKeyRepository(keyStore, keyTTL)
	}

	var contests app.ContestStore
	if redisClient != nil {
		contests = redisstore.NewContestStore(redisClient, redisTTL)
	} else {
		contests = memory.NewContestStore()
	}

	var claims ledger.Ledger
	switch {
	case bunDB != nil:
		claims = pgstore.NewLedger(bunDB)
	case redisClient != nil:
		claims = redisstore.NewLedger(redisClient)
	default:
		log.Warnf("No postgres or redis configured: claims are kept in memory")
		claims = memory.NewLedger()
	}

	var publisher app.Publisher = app.NewLogPublisher(logs.Logger("EVNT"))
	if cfg.RabbitMQ.URL != "" {
		amqpPublisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			return err
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
		log.Infof("Publishing events to queue %s", amqpPublisher.Queue())
	}

	fees, err := app.NewFeeRegistry(cfg.Payout.PlatformFeeBps, cfg.Payout.MaxPlatformFeeBps, cfg.Payout.Treasury)
	if err != nil {
		return err
	}
	distributor, err := payout.NewDistributor(cfg.Payout.TierRatio)
	if err != nil {
		return err
	}

	service := app.NewContestService(app.Deps{
		Contests:      contests,
		AnswerKeys:    keys,
		Ledger:        claims,
		Fees:          fees,
		Distributor:   distributor,
		Publisher:     publisher,
		Log:           logs.Logger("SETL"),
		MaxWinnersCap: cfg.Contest.MaxWinnersCap,
	})

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	relay := app.NewPayoutRelay(claims, publisher, logs.Logger("RLAY"))
	go relay.Run(relayCtx, config.TTLDuration(cfg.Payout.RelayInterval, 5*time.Second))

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, logs.Logger("HTTP")),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Infof("Starting settlement service on :%s (tier ratio %s)", finalPort, distributor.Ratio())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Infof("Shutting down server...")
	case <-ctx.Done():
		log.Infof("Context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
