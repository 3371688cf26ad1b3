package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xarmian/voi-wallet-sub002/pkg/types"
)

func validConfig() *DeviceConfig {
	return &DeviceConfig{
		Role:        types.RoleSigner,
		DataDir:     "/tmp/airgap-data",
		KeystoreDir: "/tmp/airgap-keys",
		NetworkID:   "voitest-v1",
		GenesisHash: "aGFzaA==",
	}
}

func TestDeviceConfig_ValidDefaults(t *testing.T) {
	cfg := validConfig()

	err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, PersistenceTypeBadger, cfg.PersistenceType)
	assert.Equal(t, 5, cfg.FrameRate)
}

func TestDeviceConfig_MissingRequired(t *testing.T) {
	cfg := &DeviceConfig{}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role")
	assert.Contains(t, err.Error(), "dataDir")
	assert.Contains(t, err.Error(), "networkId")
	assert.Contains(t, err.Error(), "genesisHash")
}

func TestDeviceConfig_InvalidRole(t *testing.T) {
	cfg := validConfig()
	cfg.Role = "toaster"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "role")
}

func TestDeviceConfig_RedisRequiresAddress(t *testing.T) {
	cfg := validConfig()
	cfg.PersistenceType = PersistenceTypeRedis

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redisAddress")

	cfg.RedisAddress = "localhost:6379"
	require.NoError(t, cfg.Validate())
}

func TestDeviceConfig_UnknownPersistenceType(t *testing.T) {
	cfg := validConfig()
	cfg.PersistenceType = "cassette-tape"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistenceType")
}

func TestDeviceConfig_FrameRateBounds(t *testing.T) {
	cfg := validConfig()
	cfg.FrameRate = 31

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frameRate")

	cfg.FrameRate = 10
	require.NoError(t, cfg.Validate())
}
