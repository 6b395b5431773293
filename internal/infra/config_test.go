package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joseferreira/stakenet/internal/domain"
)

func TestLoadConfigDefaults(t *testing.T) {
	require := require.New(t)

	config := LoadConfig()
	require.Equal("/ip4/0.0.0.0/tcp/4000", config.P2PListenAddress)
	require.Equal(15*time.Second, config.PeerDiscoveryInterval)

	ctx, err := config.SerializationContext()
	require.NoError(err)
	require.Equal(domain.DefaultSerializationContext(), ctx)

	version, err := config.Version()
	require.NoError(err)
	require.Equal("SNET.1.0", version.String())
}

func TestLoadConfigFromEnv(t *testing.T) {
	require := require.New(t)

	t.Setenv("DB_PATH", "/tmp/other.db")
	t.Setenv("PEER_DISCOVERY_INTERVAL_SECONDS", "3")
	t.Setenv("THREAD_COUNT", "4")
	t.Setenv("MAX_ASK_BLOCKS_PER_MESSAGE", "7")
	t.Setenv("MAX_MESSAGE_SIZE", "not a number")

	config := LoadConfig()
	require.Equal("/tmp/other.db", config.DBPath)
	require.Equal(3*time.Second, config.PeerDiscoveryInterval)

	ctx, err := config.SerializationContext()
	require.NoError(err)
	require.Equal(uint8(4), ctx.ThreadCount)
	require.Equal(uint32(7), ctx.MaxAskBlocksPerMessage)
	require.Equal(domain.DefaultSerializationContext().MaxMessageSize, ctx.MaxMessageSize)
}

func TestSerializationContextRejectsBadLimits(t *testing.T) {
	tests := map[string]func(*Config){
		"zero threads":      func(c *Config) { c.ThreadCount = 0 },
		"too many threads":  func(c *Config) { c.ThreadCount = 256 },
		"negative limit":    func(c *Config) { c.MaxAdvertiseLength = -1 },
		"zero message size": func(c *Config) { c.MaxMessageSize = 0 },
		"zero block size":   func(c *Config) { c.MaxBlockSize = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
					config := LoadConfig()
			mutate(config)
			_, err := config.SerializationContext()
			require.ErrorIs(t, err, domain.ErrInvalidContext)
		})
	}
}
