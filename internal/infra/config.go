package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/joseferreira/stakenet/internal/domain"
)

type Config struct {
	P2PListenAddress      string
	HTTPListenAddress     string
	DBPath                string
	NodeVersion           string
	LogLevel              string
	PeerDiscoveryInterval time.Duration

	ThreadCount               int
	EndorsementCount          int
	MaxAskBlocksPerMessage    int
	MaxAdvertiseLength        int
	MaxOperationsPerMessage   int
	MaxEndorsementsPerMessage int
	MaxOperationsPerBlock     int
	MaxMessageSize            int
	MaxBlockSize              int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables and defaults")
	}

	defaults := domain.DefaultSerializationContext()
	return &Config{
		P2PListenAddress:      getEnv("P2P_LISTEN_ADDRESS", "/ip4/0.0.0.0/tcp/4000"),
		HTTPListenAddress:     getEnv("HTTP_LISTEN_ADDRESS", ":8080"),
		DBPath:                getEnv("DB_PATH", "blocks.db"),
		NodeVersion:           getEnv("NODE_VERSION", "SNET.1.0"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		PeerDiscoveryInterval: getEnvAsDuration("PEER_DISCOVERY_INTERVAL_SECONDS", 15) * time.Second,

		ThreadCount:               getEnvAsInt("THREAD_COUNT", int(defaults.ThreadCount)),
		EndorsementCount:          getEnvAsInt("ENDORSEMENT_COUNT", int(defaults.EndorsementCount)),
		MaxAskBlocksPerMessage:    getEnvAsInt("MAX_ASK_BLOCKS_PER_MESSAGE", int(defaults.MaxAskBlocksPerMessage)),
		MaxAdvertiseLength:        getEnvAsInt("MAX_ADVERTISE_LENGTH", int(defaults.MaxAdvertiseLength)),
		MaxOperationsPerMessage:   getEnvAsInt("MAX_OPERATIONS_PER_MESSAGE", int(defaults.MaxOperationsPerMessage)),
		MaxEndorsementsPerMessage: getEnvAsInt("MAX_ENDORSEMENTS_PER_MESSAGE", int(defaults.MaxEndorsementsPerMessage)),
		MaxOperationsPerBlock:     getEnvAsInt("MAX_OPERATIONS_PER_BLOCK", int(defaults.MaxOperationsPerBlock)),
		MaxMessageSize:            getEnvAsInt("MAX_MESSAGE_SIZE", int(defaults.MaxMessageSize)),
		MaxBlockSize:              getEnvAsInt("MAX_BLOCK_SIZE", int(defaults.MaxBlockSize)),
	}
}

// Version parses NodeVersion.
func (c *Config) Version() (domain.Version, error) {
	return domain.ParseVersion(c.NodeVersion)
}

// SerializationContext builds the decoding limits from the configured
// values. The bootstrap limits are not configurable and keep their
// defaults.
func (c *Config) SerializationContext() (*domain.SerializationContext, error) {
	ctx := domain.DefaultSerializationContext()

	if c.ThreadCount < 1 || c.ThreadCount > 255 {
		return nil, fmt.Errorf("%w: thread count %d", domain.ErrInvalidContext, c.ThreadCount)
	}
	ctx.ThreadCount = uint8(c.ThreadCount)

	limits := []struct {
		name  string
		value int
		dst   *uint32
	}{
		{"ENDORSEMENT_COUNT", c.EndorsementCount, &ctx.EndorsementCount},
		{"MAX_ASK_BLOCKS_PER_MESSAGE", c.MaxAskBlocksPerMessage, &ctx.MaxAskBlocksPerMessage},
		{"MAX_ADVERTISE_LENGTH", c.MaxAdvertiseLength, &ctx.MaxAdvertiseLength},
		{"MAX_OPERATIONS_PER_MESSAGE", c.MaxOperationsPerMessage, &ctx.MaxOperationsPerMessage},
		{"MAX_ENDORSEMENTS_PER_MESSAGE", c.MaxEndorsementsPerMessage, &ctx.MaxEndorsementsPerMessage},
		{"MAX_OPERATIONS_PER_BLOCK", c.MaxOperationsPerBlock, &ctx.MaxOperationsPerBlock},
		{"MAX_MESSAGE_SIZE", c.MaxMessageSize, &ctx.MaxMessageSize},
		{"MAX_BLOCK_SIZE", c.MaxBlockSize, &ctx.MaxBlockSize},
	}
	for _, limit := range limits {
		if limit.value < 0 || uint64(limit.value) > 1<<32-1 {
			return nil, fmt.Errorf("%w: %s=%d", domain.ErrInvalidContext, limit.name, limit.value)
		}
		*limit.dst = uint32(limit.value)
	}

	if err := ctx.Validate(); err != nil {
		return nil, err
	}
	return ctx, nil
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(value)
	}
	return fallback
}
