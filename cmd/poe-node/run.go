package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/empower1/proof-of-emotion/internal/config"
	"github.com/empower1/proof-of-emotion/internal/consensus"
	"github.com/empower1/proof-of-emotion/internal/poecrypto"
	"github.com/empower1/proof-of-emotion/internal/utils"
)

// statusLogInterval is how often runNode logs a health/metrics summary
// while the engine is running.
const statusLogInterval = 30 * time.Second

func newRunCmd() *cobra.Command {
	var (
		configPath string
		keyPath    string
		stake      uint64
		commission uint8
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a Proof of Emotion validator node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configPath, keyPath, stake, commission)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the node configuration file")
	cmd.Flags().StringVar(&keyPath, "key", "", "path to the hex-encoded validator secret key (a fresh key is generated if empty)")
	cmd.Flags().Uint64Var(&stake, "stake", 10_000, "stake amount this validator registers with")
	cmd.Flags().Uint8Var(&commission, "commission", 10, "commission percentage charged to delegators")
	return cmd
}

func runNode(configPath, keyPath string, stake uint64, commission uint8) error {
	file, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := buildLogger(file.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	keyPair, err := loadOrGenerateKey(keyPath)
	if err != nil {
		return fmt.Errorf("failed to obtain validator key: %w", err)
	}

	engine, err := consensus.New(file.Consensus, logger)
	if err != nil {
		return fmt.Errorf("failed to construct consensus engine: %w", err)
	}

	if err := engine.RegisterValidator(file.NodeID, keyPair, file.ListenAddr, stake, commission); err != nil {
		return fmt.Errorf("failed to register local validator: %w", err)
	}

	if err := engine.Start(); err != nil {
		return fmt.Errorf("failed to start consensus engine: %w", err)
	}

	logger.Info("node running",
		zap.String("node_id", file.NodeID),
		zap.String("public_key", keyPair.PublicKeyHex()),
		zap.Uint64("stake", stake))

	statusDone := make(chan struct{})
	go logStatusPeriodically(engine, logger, statusDone)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdown
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	close(statusDone)

	if err := engine.Stop(); err != nil {
		return fmt.Errorf("failed to stop consensus engine cleanly: %w", err)
	}

	logger.Info("node stopped")
	return nil
}

func loadOrGenerateKey(path string) (*poecrypto.KeyPair, error) {
	if path == "" {
		return poecrypto.GenerateKeyPair()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return poecrypto.KeyPairFromSecretHex(trimNewline(data))
}

func trimNewline(data []byte) string {
	s := string(data)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// logStatusPeriodically logs a health/metrics/rewards summary on a fixed
// interval until done is closed, mirroring the sidecar status line an
// operator would otherwise get from a metrics scrape.
func logStatusPeriodically(engine *consensus.Engine, logger *zap.Logger, done <-chan struct{}) {
	ticker := time.NewTicker(statusLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			health := engine.GetHealth()
			metrics := engine.GetMetrics()
			fields := []zap.Field{
				zap.String("health", health.StatusMessage()),
				zap.Uint64("epoch", engine.GetState().CurrentEpoch),
				zap.Uint64("blocks_finalized", metrics.BlocksFinalized),
				zap.String("rewards_distributed", utils.FormatPOEAmount(metrics.RewardsDistributed)),
			}
			if proof, ok := engine.GetLatestEmotionalProof(); ok {
				fields = append(fields, zap.Uint8("latest_consensus_strength", proof.ConsensusStrength))
			}
			logger.Info("status", fields...)
		case <-done:
			return
		}
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	switch level {
	case "debug":
		return zap.NewDevelopment()
	default:
		return zap.NewProduction()
	}
}
