package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	goversion "github.com/caarlos0/go-version"
	"github.com/hashicorp/go-multierror"

	"example.com/tweetfeed/cmd/server"
	"example.com/tweetfeed/cmd/worker"
	"example.com/tweetfeed/internal/auth"
	appkafka "example.com/tweetfeed/internal/broker"
	"example.com/tweetfeed/internal/feed"
	config "example.com/tweetfeed/internal/init"
	"example.com/tweetfeed/internal/logger"
	"example.com/tweetfeed/internal/store"
)

// Set through -ldflags "-X main.version=..." at build time.
var (
	version   = "dev"
	commit    = ""
	treeState = ""
	date      = ""
	builtBy   = ""
)

func main() {
	// Initialize application configuration
	cfg := config.Init()
	logger.SetLevel(cfg.LogLevel)
	info := buildVersion(version, commit, date, builtBy, treeState)

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case "version":
		fmt.Println(info.String())
		return
	case "migrate":
		if err := store.Migrate(ctx, cfg.DBDriver, cfg.DBDSN); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations up to date")
		return
	case "server", "worker":
	default:
		log.Fatalf("unknown mode: %s", cfg.Mode)
	}

	// Initialize the relational store (runs pending migrations)
	st, err := store.New(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	// Configure Kafka client parameters
	kafkaCfg := appkafka.KafkaConfig{
		Topic:        cfg.KafkaTopic,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}
	if cfg.KafkaBroker != "" {
		kafkaCfg.Brokers = []string{cfg.KafkaBroker}
	}

	var runErr error
	switch cfg.Mode {
	case "server":
		runErr = runServer(ctx, cfg, st, kafkaCfg, info.GitVersion)
	case "worker":
		runErr = runWorker(ctx, cfg, st, kafkaCfg)
	}
	if runErr != nil {
		log.Fatalf("%s stopped: %v", cfg.Mode, runErr)
	}

	log.Println("Shutdown completed")
}

// runServer serves HTTP until ctx is cancelled and then releases its resources.
func runServer(ctx context.Context, cfg *config.Config, st *store.Store, kafkaCfg appkafka.KafkaConfig, version string) (err error) {
	var events appkafka.KafkaWriter = appkafka.NopWriter{}
	if len(kafkaCfg.Brokers) > 0 {
		if events, err = appkafka.NewKafkaWriter(kafkaCfg); err != nil {
			st.Close()
			return fmt.Errorf("kafka writer init failed: %w", err)
		}
	} else {
		log.Println("KAFKA_BROKER not set, tweet events are not published")
	}

	defer func() {
		var result *multierror.Error
		if err != nil {
			result = multierror.Append(result, err)
		}
		if cerr := events.Close(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
		if cerr := st.Close(); cerr != nil {
			result = multierror.Append(result, cerr)
		}
		err = result.ErrorOrNil()
	}()

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("JWT_SECRET is required in server mode: %w", err)
	}

	srv := server.New(st, events, tokens, feed.NewResolver(st, cfg.FeedLimit), server.Options{
		ListLimit:   cfg.ListLimit,
		BcryptCost:  cfg.BcryptCost,
		CORSOrigins: cfg.CORSOrigins,
		Version:     version,
	})
	return srv.Run(ctx, cfg.ServerAddr, cfg.TLSCertFile, cfg.TLSKeyFile)
}

// runWorker consumes tweet events until ctx is cancelled.
func runWorker(ctx context.Context, cfg *config.Config, st *store.Store, kafkaCfg appkafka.KafkaConfig) error {
	if len(kafkaCfg.Brokers) == 0 {
		st.Close()
		return fmt.Errorf("KAFKA_BROKER is required in worker mode")
	}

	// Start the worker that reads tweet events from Kafka and writes notifications
	w := worker.New(st, appkafka.NewKafkaReader(kafkaCfg), cfg.WorkerCount, cfg.WorkerQueueSize)
	w.Run(ctx)
	return w.Close()
}

func buildVersion(version, commit, date, builtBy, treeState string) goversion.Info {
	return goversion.GetVersionInfo(
		goversion.WithAppDetails("tweetfeed", "Tweet feed service with follower-gated visibility.", ""),
		func(i *goversion.Info) {
			if commit != "" {
				i.GitCommit = commit
			}
			if version != "" {
				i.GitVersion = version
			}
			if treeState != "" {
				i.GitTreeState = treeState
			}
			if date != "" {
				i.BuildDate = date
			}
			if builtBy != "" {
				i.BuiltBy = builtBy
			}
		},
	)
}
