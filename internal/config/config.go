package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ReceiverDB string
	CatalogDB  string
	ParserName string

	SyncBatchSize  int
	SyncMaxBatches int

	StorageBaseURL          string
	StorageAPIToken         string
	StorageDeleteTimeoutSec int
	StorageStrict           bool

	DaemonListenAddr   string
	DaemonAuthToken    string
	DaemonMaxQueueSize int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ReceiverDB: getEnv("RECEIVER_DB", ""),
		CatalogDB:  getEnv("CATALOG_DB", ""),
		ParserName: getEnv("PARSER_NAME", "fixprice"),

		SyncBatchSize:  getEnvInt("SYNC_BATCH_SIZE", 200),
		SyncMaxBatches: getEnvInt("SYNC_MAX_BATCHES", 0),

		StorageBaseURL:          getEnv("STORAGE_BASE_URL", ""),
		StorageAPIToken:         getEnv("STORAGE_API_TOKEN", ""),
		StorageDeleteTimeoutSec: getEnvInt("STORAGE_DELETE_TIMEOUT_SEC", 10),
		StorageStrict:           getEnvBool("STORAGE_STRICT", false),

		DaemonListenAddr:   getEnv("DAEMON_LISTEN_ADDR", "127.0.0.1:8787"),
		DaemonAuthToken:    getEnv("DAEMON_AUTH_TOKEN", ""),
		DaemonMaxQueueSize: getEnvInt("DAEMON_MAX_QUEUE_SIZE", 16),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
