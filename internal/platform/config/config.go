package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileEnv names an optional YAML file. Environment variables override it.
const ConfigFileEnv = "MERKLEDROP_CONFIG"

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	KafkaBrokers []string

	AirdropID              string
	Administrator          string
	LedgerReference        string
	InitialRoot            string
	LeafHash               string
	MaxProofLength         int
	LedgerGRPCAddr         string
	RegistrationCollateral string
	TransferFee            string
	RegistrationTimeout    time.Duration
	TransferTimeout        time.Duration
	IdempotencyTTL         time.Duration

	WorkerPoolSize     int
	WorkerPollInterval time.Duration
	OutboxBatchSize    int
	SagaStaleAfter     time.Duration
	ShutdownGrace      time.Duration

	EnableReceiptConsumer bool
	EnableSagaSweeper     bool
}

func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		ServiceName:  v.GetString("service_name"),
		HTTPPort:     v.GetString("http_port"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		KafkaBrokers: splitList(v.GetString("kafka_brokers")),

		AirdropID:              v.GetString("airdrop_id"),
		Administrator:          v.GetString("airdrop_administrator"),
		LedgerReference:        v.GetString("airdrop_ledger_reference"),
		InitialRoot:            strings.TrimSpace(v.GetString("airdrop_root")),
		LeafHash:               v.GetString("airdrop_leaf_hash"),
		MaxProofLength:         v.GetInt("airdrop_max_proof_length"),
		LedgerGRPCAddr:         v.GetString("ledger_grpc_addr"),
		RegistrationCollateral: v.GetString("ledger_registration_collateral"),
		TransferFee:            v.GetString("ledger_transfer_fee"),
		RegistrationTimeout:    v.GetDuration("ledger_registration_timeout"),
		TransferTimeout:        v.GetDuration("ledger_transfer_timeout"),
		IdempotencyTTL:         v.GetDuration("idempotency_ttl"),

		WorkerPoolSize:     v.GetInt("worker_pool_size"),
		WorkerPollInterval: v.GetDuration("worker_poll_interval"),
		OutboxBatchSize:    v.GetInt("outbox_batch_size"),
		SagaStaleAfter:     v.GetDuration("saga_stale_after"),
		ShutdownGrace:      v.GetDuration("shutdown_grace"),

		EnableReceiptConsumer: v.GetBool("enable_receipt_consumer"),
		EnableSagaSweeper:     v.GetBool("enable_saga_sweeper"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "merkledrop")
	v.SetDefault("http_port", "8080")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("kafka_brokers", "")

	v.SetDefault("airdrop_id", "default")
	v.SetDefault("airdrop_administrator", "")
	v.SetDefault("airdrop_ledger_reference", "")
	v.SetDefault("airdrop_root", "")
	v.SetDefault("airdrop_leaf_hash", "sha256")
	v.SetDefault("airdrop_max_proof_length", 64)
	v.SetDefault("ledger_grpc_addr", "")
	v.SetDefault("ledger_registration_collateral", "1250000000000000000000")
	v.SetDefault("ledger_transfer_fee", "1")
	v.SetDefault("ledger_registration_timeout", 30*time.Second)
	v.SetDefault("ledger_transfer_timeout", 30*time.Second)
	v.SetDefault("idempotency_ttl", 7*24*time.Hour)

	v.SetDefault("worker_pool_size", 16)
	v.SetDefault("worker_poll_interval", 2*time.Second)
	v.SetDefault("outbox_batch_size", 100)
	v.SetDefault("saga_stale_after", 10*time.Minute)
	v.SetDefault("shutdown_grace", 15*time.Second)

	v.SetDefault("enable_receipt_consumer", true)
	v.SetDefault("enable_saga_sweeper", true)
}

func (c Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.Administrator) == "" {
		missing = append(missing, "AIRDROP_ADMINISTRATOR")
	}
	if strings.TrimSpace(c.LedgerReference) == "" {
		missing = append(missing, "AIRDROP_LEDGER_REFERENCE")
	}
	if c.InitialRoot == "" {
		missing = append(missing, "AIRDROP_ROOT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.WorkerPoolSize <= 0 {
		return errors.New("WORKER_POOL_SIZE must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	var items []string
	for _, value := range strings.Split(raw, ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
