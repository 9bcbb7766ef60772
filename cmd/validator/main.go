package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nliao6622/QuantaDB-1/internal/clustertime"
	"github.com/nliao6622/QuantaDB-1/internal/config"
	"github.com/nliao6622/QuantaDB-1/internal/health"
	"github.com/nliao6622/QuantaDB-1/internal/intake"
	"github.com/nliao6622/QuantaDB-1/internal/metrics"
	"github.com/nliao6622/QuantaDB-1/internal/model"
	"github.com/nliao6622/QuantaDB-1/internal/peerexchange"
	"github.com/nliao6622/QuantaDB-1/internal/reaper"
	"github.com/nliao6622/QuantaDB-1/internal/sequencer"
	"github.com/nliao6622/QuantaDB-1/internal/server"
	"github.com/nliao6622/QuantaDB-1/internal/ssn/activetxset"
	"github.com/nliao6622/QuantaDB-1/internal/ssn/distributedtxset"
	"github.com/nliao6622/QuantaDB-1/internal/storage/diskmanager"
	"github.com/nliao6622/QuantaDB-1/internal/storage/tuplestore"
	"github.com/nliao6622/QuantaDB-1/internal/txlog"
	"github.com/nliao6622/QuantaDB-1/internal/util/workerpool"
	"github.com/nliao6622/QuantaDB-1/internal/validation"
	"github.com/nliao6622/QuantaDB-1/internal/validator"
)

func main() {
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("node_id", cfg.Server.NodeID),
		zap.Uint64("shard_id", cfg.Server.ShardID),
		zap.String("txlog_dir", cfg.TxLog.Dir))

	if err := os.MkdirAll(cfg.TxLog.Dir, 0755); err != nil {
		logger.Fatal("failed to create txlog directory", zap.Error(err))
	}

	disk, err := diskmanager.NewDiskManager(diskmanager.DefaultConfig(cfg.TxLog.Dir), logger)
	if err != nil {
		logger.Fatal("failed to initialize disk manager", zap.Error(err))
	}

	m := metrics.NewMetrics(cfg.Server.NodeID)

	log, err := txlog.New(txlog.Config{
		Dir:         cfg.TxLog.Dir,
		ChunkSize:   cfg.TxLog.ChunkSize,
		SyncWrites:  cfg.TxLog.SyncWrites,
		RotateCheck: cfg.TxLog.RotateCheck,
		Metrics:     m,
	}, disk, logger)
	if err != nil {
		logger.Fatal("failed to initialize txlog", zap.Error(err))
	}
	defer log.Close()

	clock := clustertime.NewClock(cfg.Server.ShardID, logger)
	seq := sequencer.NewWithDelta(clock, cfg.Sequencer.Delta, logger)

	active := activetxset.New()
	dtxSet := distributedtxset.New(logger)
	tuples := tuplestore.New()

	rp := reaper.New(log, tuples, cfg.Reaper.Interval, logger)
	rp.SetMetrics(m)
	rp.Run()
	defer rp.Stop()

	var peers *peerexchange.PeerExchange
	if cfg.PeerExchange.Enabled {
		peers, err = peerexchange.New(peerexchange.Config{
			NodeName:      cfg.Server.NodeID,
			BindAddr:      cfg.PeerExchange.BindAddr,
			BindPort:      cfg.PeerExchange.BindPort,
			SeedNodes:     cfg.PeerExchange.SeedNodes,
			JoinRetries:   cfg.PeerExchange.JoinRetries,
			JoinRetryWait: cfg.PeerExchange.JoinRetryWait,
		}, cfg.Server.ShardID, logger)
		if err != nil {
			logger.Error("failed to initialize peer exchange, continuing without cross-shard support", zap.Error(err))
			peers = nil
		} else {
			peers.SetMetrics(m)
			defer peers.Leave(5 * time.Second)
		}
	}

	pool := workerpool.NewWorkerPool(&workerpool.Config{
		Name:       "validator",
		MaxWorkers: cfg.Validator.PoolSize,
		QueueSize:  cfg.Validator.QueueSize,
		Logger:     logger,
	})
	defer pool.Stop(10 * time.Second)

	v := validator.New(validator.Deps{
		Sequencer:       seq,
		Tuples:          tuples,
		Active:          active,
		DtxSet:          dtxSet,
		Log:             log,
		Reaper:          rp,
		Peers:           peers,
		Pool:            pool,
		Logger:          logger,
		Metrics:         m,
		PollInterval:    cfg.Validator.PollInterval,
		PeerWaitTimeout: cfg.Validator.PeerWaitTimeout,
	})
	v.Run()
	defer v.Stop()

	hc := health.NewHealthChecker(&health.HealthCheckConfig{
		NodeID:   cfg.Server.NodeID,
		TxLogDir: cfg.TxLog.Dir,
	}, disk, logger)
	hc.SetSampleFunc(func() model.HealthMetrics {
		return model.HealthMetrics{
			ActiveTxSetSaturation: active.Saturation(),
			HotQueueDepth:         dtxSet.HotDepth(),
			ReaperLagSeconds:      rp.LagSeconds(),
		}
	})
	healthCtx, cancelHealth := context.WithCancel(context.Background())
	go hc.Start(healthCtx)
	defer cancelHealth()

	if cfg.Metrics.Enabled {
		ms := server.NewMetricsServer(&server.MetricsServerConfig{
			Port:     cfg.Metrics.Port,
			TxLogDir: cfg.TxLog.Dir,
		}, m, hc, logger)
		if err := ms.Start(); err != nil {
			logger.Error("failed to start metrics server", zap.Error(err))
		}
		defer ms.Stop()
	}

	intakeValidator := validation.NewValidator()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}
	logger.Info("validator node listening", zap.String("address", addr))

	go serveIntake(listener, v, intakeValidator, log, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully")
	hc.SetReadiness(false)
	listener.Close()
}

// serveIntake accepts connections on the intake socket, decodes one CI
// per connection, submits it for validation, and writes back its
// concluded outcome.
func serveIntake(listener net.Listener, v *validator.Validator, val *validation.Validator, log *txlog.TxLog, logger *zap.Logger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && !ne.Timeout() {
				return
			}
			continue
		}
		go handleIntakeConn(conn, v, val, log, logger)
	}
}

func handleIntakeConn(conn net.Conn, v *validator.Validator, val *validation.Validator, log *txlog.TxLog, logger *zap.Logger) {
	defer conn.Close()

	tx, err := intake.DecodeCI(conn)
	if err != nil {
		logger.Warn("intake: failed to decode CI", zap.Error(err))
		return
	}

	if err := val.ValidateCommitIntent(tx); err != nil {
		logger.Warn("intake: rejected malformed CI", zap.Error(err))
		writeOutcome(conn, 0, model.TxAbort)
		return
	}

	if !v.Submit(tx) {
		writeOutcome(conn, tx.CTS, model.TxAbort)
		return
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if state, ok := log.GetTxState(tx.CTS); ok && state != model.TxPending {
			writeOutcome(conn, tx.CTS, state)
			return
		}
		time.Sleep(time.Millisecond)
	}
	writeOutcome(conn, tx.CTS, model.TxAlert)
}

func writeOutcome(conn net.Conn, cts uint64, state model.TxState) {
	var b [9]byte
	binary.LittleEndian.PutUint64(b[0:8], cts)
	b[8] = byte(state)
	conn.Write(b[:])
}

func initLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}
