package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPollingAttempts   = 40
	DefaultPollingIntervalMs = 15000
	DefaultSubjectPrefix     = "crosschain"
)

// Config application configuration structure
type Config struct {
	Crosschain CrosschainConfig `yaml:"crosschain"`
	KMS        KMSConfig        `yaml:"kms"`
	NATS       NATSConfig       `yaml:"nats"`
	Log        LogConfig        `yaml:"log"`
}

// CrosschainConfig settings of the crosschain transaction manager
type CrosschainConfig struct {
	ChainID      uint64             `yaml:"chainId"`
	Besu         NodeConfig         `yaml:"besu"`
	Coordination CoordinationConfig `yaml:"coordination"`
	Signer       SignerConfig       `yaml:"signer"`
	Receipts     ReceiptConfig      `yaml:"receipts"`
}

// NodeConfig RPC endpoints of one node, tried in order
type NodeConfig struct {
	RPCEndpoints []string `yaml:"rpcEndpoints"`
	DialTimeout  int      `yaml:"dialTimeout"` // seconds
}

// CoordinationConfig coordination blockchain and contract
type CoordinationConfig struct {
	BlockchainID    uint64   `yaml:"blockchainId"`
	ContractAddress string   `yaml:"contractAddress"`
	RPCEndpoints    []string `yaml:"rpcEndpoints"`
	DialTimeout     int      `yaml:"dialTimeout"` // seconds
	TimeoutInBlocks uint64   `yaml:"timeoutInBlocks"`
}

// SignerConfig signing method - KMS or a direct private key
type SignerConfig struct {
	PrivateKey    string `yaml:"privateKey"`    // hex, 0x prefix optional
	UsePrivateKey bool   `yaml:"usePrivateKey"` // prefer the private key even if KMS is enabled
	KMSEnabled    bool   `yaml:"kmsEnabled"`
	KMSKeyAlias   string `yaml:"kmsKeyAlias"`
	Address       string `yaml:"address"` // optional for KMS, looked up by alias when empty
}

// ReceiptConfig receipt polling
type ReceiptConfig struct {
	PollingAttempts   int  `yaml:"pollingAttempts"`
	PollingIntervalMs int  `yaml:"pollingIntervalMs"`
	NoOp              bool `yaml:"noOp"` // return immediately without polling
}

// KMSConfig KMS service configuration
type KMSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ServiceURL string `yaml:"serviceUrl"`
	AuthToken  string `yaml:"authToken"`
	Timeout    int    `yaml:"timeout"` // seconds
}

// NATSConfig NATS publisher for submission events
type NATSConfig struct {
	URL             string `yaml:"url"`
	Timeout         int    `yaml:"timeout"`
	SubjectPrefix   string `yaml:"subjectPrefix"`
	EnableJetStream bool   `yaml:"enableJetStream"`
}

// LogConfig logrus settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

var AppConfig *Config

// LoadConfig Load configuration file, apply environment overrides and publish it as AppConfig
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("[Config] Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return err
	}

	log.Printf("[Config] Loaded %s: chainId=%d, coordination blockchainId=%d, timeoutInBlocks=%d",
		configPath, config.Crosschain.ChainID, config.Crosschain.Coordination.BlockchainID,
		config.Crosschain.Coordination.TimeoutInBlocks)

	AppConfig = &config
	return nil
}

// Parse decodes YAML without consulting the environment
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Crosschain.Receipts.PollingAttempts <= 0 {
		config.Crosschain.Receipts.PollingAttempts = DefaultPollingAttempts
	}
	if config.Crosschain.Receipts.PollingIntervalMs <= 0 {
		config.Crosschain.Receipts.PollingIntervalMs = DefaultPollingIntervalMs
	}
	if config.NATS.SubjectPrefix == "" {
		config.NATS.SubjectPrefix = DefaultSubjectPrefix
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

// Validate checks the settings the transaction manager cannot run without
func (c *Config) Validate() error {
	cc := c.Crosschain
	if len(cc.Besu.RPCEndpoints) == 0 {
		return fmt.Errorf("crosschain.besu.rpcEndpoints is empty")
	}
	if len(cc.Coordination.RPCEndpoints) == 0 {
		return fmt.Errorf("crosschain.coordination.rpcEndpoints is empty")
	}
	if cc.Coordination.ContractAddress == "" {
		return fmt.Errorf("crosschain.coordination.contractAddress is not configured")
	}
	if cc.Coordination.TimeoutInBlocks == 0 {
		return fmt.Errorf("crosschain.coordination.timeoutInBlocks must be positive")
	}
	if !c.UseKMS() && cc.Signer.PrivateKey == "" {
		return fmt.Errorf("crosschain.signer: neither privateKey nor KMS signing is configured")
	}
	if c.UseKMS() && c.KMS.ServiceURL == "" {
		return fmt.Errorf("kms.serviceUrl is required when crosschain.signer.kmsEnabled is set")
	}
	return nil
}

// UseKMS reports whether transactions are signed through the KMS
func (c *Config) UseKMS() bool {
	s := c.Crosschain.Signer
	if s.UsePrivateKey && s.PrivateKey != "" {
		return false
	}
	return s.KMSEnabled && s.KMSKeyAlias != ""
}

// overrideFromEnv Override configuration from environment
func overrideFromEnv(config *Config) {
	if chainID := os.Getenv("CROSSCHAIN_CHAIN_ID"); chainID != "" {
		if id, err := strconv.ParseUint(chainID, 10, 64); err == nil {
			config.Crosschain.ChainID = id
		}
	}
	if endpoints := os.Getenv("BESU_RPC_ENDPOINTS"); endpoints != "" {
		config.Crosschain.Besu.RPCEndpoints = splitList(endpoints)
	}
	if endpoints := os.Getenv("COORDINATION_RPC_ENDPOINTS"); endpoints != "" {
		config.Crosschain.Coordination.RPCEndpoints = splitList(endpoints)
	}
	if addr := os.Getenv("COORDINATION_CONTRACT_ADDRESS"); addr != "" {
		config.Crosschain.Coordination.ContractAddress = addr
	}
	if timeout := os.Getenv("CROSSCHAIN_TIMEOUT_IN_BLOCKS"); timeout != "" {
		if blocks, err := strconv.ParseUint(timeout, 10, 64); err == nil {
			config.Crosschain.Coordination.TimeoutInBlocks = blocks
		}
	}

	// Private key from environment variables
	if privateKey := os.Getenv("PRIVATE_KEY"); privateKey != "" {
		config.Crosschain.Signer.PrivateKey = privateKey
		log.Printf("[Config] Loaded signer private key from environment variable: PRIVATE_KEY")
	}
	if kmsKeyAlias := os.Getenv("KMS_KEY_ALIAS"); kmsKeyAlias != "" {
		config.Crosschain.Signer.KMSKeyAlias = kmsKeyAlias
	}

	if kmsEnabled := os.Getenv("KMS_ENABLED"); kmsEnabled != "" {
		config.KMS.Enabled = kmsEnabled == "true"
		config.Crosschain.Signer.KMSEnabled = config.KMS.Enabled
	}
	if kmsServiceURL := os.Getenv("KMS_SERVICE_URL"); kmsServiceURL != "" {
		config.KMS.ServiceURL = kmsServiceURL
	}
	if kmsAuthToken := os.Getenv("KMS_AUTH_TOKEN"); kmsAuthToken != "" {
		config.KMS.AuthToken = kmsAuthToken
	}
	if kmsTimeout := os.Getenv("KMS_TIMEOUT"); kmsTimeout != "" {
		if t, err := strconv.Atoi(kmsTimeout); err == nil {
			config.KMS.Timeout = t
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
