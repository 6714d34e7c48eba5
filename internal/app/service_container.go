package app

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"crosschain-core/internal/clients"
	"crosschain-core/internal/config"
	"crosschain-core/internal/events"
	"crosschain-core/internal/services"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// ServiceContainer holds the wired crosschain core
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Node clients
	BesuClient         *clients.BesuClient
	CoordinationClient *ethclient.Client

	// Signing
	KMSClient       *clients.KMSClient
	SigningStrategy services.SigningStrategy

	// Events (optional, nil when NATS is not configured)
	NATSClient       *clients.NATSClient
	SubmissionEvents *events.SubmissionEventPublisher

	TxManager *services.CrosschainTransactionManager
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the global container from config.AppConfig once
func InitializeContainer(ctx context.Context) (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		if config.AppConfig == nil {
			initErr = fmt.Errorf("config not loaded")
			return
		}
		Container, initErr = NewServiceContainer(ctx, config.AppConfig)
	})

	return Container, initErr
}

// NewServiceContainer dials the nodes, resolves the signer and builds the transaction manager
func NewServiceContainer(ctx context.Context, cfg *config.Config) (*ServiceContainer, error) {
	c := &ServiceContainer{
		Config: cfg,
		Logger: NewLogger(cfg.Log),
	}
	c.Logger.Info("[ServiceContainer] Initializing crosschain core")

	// 1. Node clients
	if err := c.initClients(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize node clients: %w", err)
	}

	// 2. Signing strategy
	if err := c.initSigner(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize signer: %w", err)
	}

	// 3. Event services (optional, based on config)
	if err := c.initEventServices(); err != nil {
		c.Logger.WithError(err).Warn("[ServiceContainer] Event services initialization skipped or failed")
	}

	// 4. Transaction manager
	if err := c.initTxManager(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize transaction manager: %w", err)
	}

	c.Logger.WithField("from", c.TxManager.FromAddress().Hex()).Info("[ServiceContainer] Crosschain core initialized")
	return c, nil
}

func (c *ServiceContainer) initClients(ctx context.Context) error {
	cc := c.Config.Crosschain

	chainID := new(big.Int).SetUint64(cc.ChainID)
	besu, err := clients.DialBesu(ctx, cc.Besu.RPCEndpoints, chainID, seconds(cc.Besu.DialTimeout), c.Logger)
	if err != nil {
		return err
	}
	c.BesuClient = besu

	coordination, err := clients.DialCoordination(ctx, cc.Coordination.RPCEndpoints, seconds(cc.Coordination.DialTimeout), c.Logger)
	if err != nil {
		return err
	}
	c.CoordinationClient = coordination
	return nil
}

func (c *ServiceContainer) initSigner(ctx context.Context) error {
	signer := c.Config.Crosschain.Signer
	chainID := new(big.Int).SetUint64(c.Config.Crosschain.ChainID)

	if c.Config.UseKMS() {
		c.KMSClient = clients.NewKMSClient(c.Config.KMS)
		if err := c.KMSClient.HealthCheck(ctx); err != nil {
			return err
		}
		strategy, err := services.NewKMSSigningStrategy(ctx, c.KMSClient, signer.KMSKeyAlias, chainID, signer.Address)
		if err != nil {
			return err
		}
		c.SigningStrategy = strategy
	} else {
		strategy, err := services.NewPrivateKeySigningStrategy(signer.PrivateKey)
		if err != nil {
			return err
		}
		c.SigningStrategy = strategy
	}

	c.Logger.WithFields(logrus.Fields{
		"strategy": c.SigningStrategy.Name(),
		"address":  c.SigningStrategy.Address().Hex(),
	}).Info("[ServiceContainer] Signing strategy ready")
	return nil
}

func (c *ServiceContainer) initEventServices() error {
	if c.Config.NATS.URL == "" {
		c.Logger.Info("[ServiceContainer] NATS not configured, submission events disabled")
		return nil
	}

	natsClient, err := clients.NewNATSClient(c.Config.NATS, c.Logger)
	if err != nil {
		return err
	}
	c.NATSClient = natsClient
	c.SubmissionEvents = events.NewSubmissionEventPublisher(natsClient, c.Config.NATS.SubjectPrefix, c.Logger)
	return nil
}

func (c *ServiceContainer) initTxManager() error {
	cc := c.Config.Crosschain

	opts := []services.ManagerOption{services.WithLogger(c.Logger)}
	if cc.Receipts.NoOp {
		opts = append(opts, services.WithReceiptProcessor(services.NewNoOpReceiptProcessor()))
	}
	if c.SubmissionEvents != nil {
		opts = append(opts, services.WithSubmissionListener(c.SubmissionEvents))
	}

	manager, err := services.NewCrosschainTransactionManager(services.ManagerConfig{
		Besu:                        c.BesuClient,
		Coordination:                c.CoordinationClient,
		Strategy:                    c.SigningStrategy,
		ChainID:                     new(big.Int).SetUint64(cc.ChainID),
		CoordinationBlockchainID:    new(big.Int).SetUint64(cc.Coordination.BlockchainID),
		CoordinationContractAddress: cc.Coordination.ContractAddress,
		TimeoutInBlocks:             cc.Coordination.TimeoutInBlocks,
		PollingAttempts:             cc.Receipts.PollingAttempts,
		PollingInterval:             time.Duration(cc.Receipts.PollingIntervalMs) * time.Millisecond,
	}, opts...)
	if err != nil {
		return err
	}
	c.TxManager = manager
	return nil
}

// Ready reports whether the manager is built and, when events are enabled, NATS is connected
func (c *ServiceContainer) Ready() bool {
	if c == nil || c.TxManager == nil {
		return false
	}
	return c.NATSClient == nil || c.NATSClient.IsConnected()
}

// Close releases node and NATS connections
func (c *ServiceContainer) Close() {
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	if c.BesuClient != nil {
		c.BesuClient.Close()
	}
	if c.CoordinationClient != nil {
		c.CoordinationClient.Close()
	}
}

// NewLogger builds a logrus logger from the log section
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}
	return logger
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
