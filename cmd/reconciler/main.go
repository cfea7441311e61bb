package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opencustody/recon/internal/config"
	"github.com/opencustody/recon/internal/events"
	"github.com/opencustody/recon/internal/gateway"
	"github.com/opencustody/recon/internal/ledger"
	"github.com/opencustody/recon/internal/logging"
	"github.com/opencustody/recon/internal/metrics"
	"github.com/opencustody/recon/internal/report"
	"github.com/opencustody/recon/internal/repository"
	"github.com/opencustody/recon/internal/service/deposit"
	"github.com/opencustody/recon/internal/service/recon"
	"github.com/opencustody/recon/internal/service/withdraw"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("reconciler", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	deposits := repository.NewDepositRepository(db)
	withdraws := repository.NewWithdrawRepository(db)
	accounts := repository.NewAccountRepository(db)
	entries := repository.NewLedgerEntryRepository(db)
	transactions := repository.NewTransactionRepository(db)
	currencies := repository.NewCurrencyRepository(db)
	beneficiaries := repository.NewBeneficiaryRepository(db)

	book := ledger.New(accounts, entries)
	machine := deposit.NewMachine(deposits, book, deposit.Policy{
		FundsLocked:    cfg.DepositFundsLocked,
		ManualApproval: cfg.ManualDepositApproval,
	})

	gw := gateway.NewClient(cfg.GatewayURL, cfg.GatewayAPIKey)
	settler := withdraw.NewService(db, withdraws, transactions, gw, cfg.BlockchainKey, logger)

	var publisher events.Publisher
	if cfg.KafkaBrokers != "" {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaEventTopic)
		defer kp.Close()
		publisher = kp
	}

	engine := recon.NewEngine(
		db,
		gw,
		deposits,
		withdraws,
		currencies,
		beneficiaries,
		machine,
		settler,
		publisher,
		report.NewLogReporter(logger),
		logger,
		recon.Config{
			BlockchainKey:     cfg.BlockchainKey,
			BeneficiaryPrefix: cfg.BeneficiaryPrefix,
			Interval:          time.Duration(cfg.PollIntervalS) * time.Second,
		},
	)

	metricsSrv := metrics.StartServer(cfg.MetricsPort, db.PingContext)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	engine.Start(ctx)
}
