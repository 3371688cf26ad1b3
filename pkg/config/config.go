package config

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/xarmian/voi-wallet-sub002/pkg/types"
)

// Environment variable names for device configuration
const (
	EnvAirgapRole            = "AIRGAP_ROLE"
	EnvAirgapDataDir         = "AIRGAP_DATA_DIR"
	EnvAirgapKeystoreDir     = "AIRGAP_KEYSTORE_DIR"
	EnvAirgapDeviceName      = "AIRGAP_DEVICE_NAME"
	EnvAirgapNetworkID       = "AIRGAP_NETWORK_ID"
	EnvAirgapGenesisHash     = "AIRGAP_GENESIS_HASH"
	EnvAirgapPersistenceType = "AIRGAP_PERSISTENCE_TYPE"
	EnvAirgapRedisAddress    = "AIRGAP_REDIS_ADDRESS"
	EnvAirgapRedisPassword   = "AIRGAP_REDIS_PASSWORD"
	EnvAirgapRedisDB         = "AIRGAP_REDIS_DB"
	EnvAirgapFrameRate       = "AIRGAP_FRAME_RATE"
	EnvAirgapVerbose         = "AIRGAP_VERBOSE"
)

// PersistenceType selects the durable storage backend
type PersistenceType string

const (
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeRedis  PersistenceType = "redis"
)

// DeviceConfig is the full configuration for one device, wallet or signer.
type DeviceConfig struct {
	// Role this device plays: wallet or signer
	Role types.DeviceRole `json:"role" yaml:"role"`

	// DataDir holds the durable device state
	DataDir string `json:"dataDir" yaml:"dataDir"`

	// KeystoreDir holds the sealed account keys
	KeystoreDir string `json:"keystoreDir" yaml:"keystoreDir"`

	// DeviceName is the user-visible name exported in pairing payloads
	DeviceName string `json:"deviceName,omitempty" yaml:"deviceName,omitempty"`

	// NetworkID and GenesisHash identify the chain requests are built for
	NetworkID   string `json:"networkId" yaml:"networkId"`
	GenesisHash string `json:"genesisHash" yaml:"genesisHash"`

	// PersistenceType selects the storage backend (badger, memory, redis)
	PersistenceType PersistenceType `json:"persistenceType" yaml:"persistenceType"`

	// Redis settings, used only when PersistenceType is redis
	RedisAddress  string `json:"redisAddress,omitempty" yaml:"redisAddress,omitempty"`
	RedisPassword string `json:"redisPassword,omitempty" yaml:"redisPassword,omitempty"`
	RedisDB       int    `json:"redisDb,omitempty" yaml:"redisDb,omitempty"`

	// FrameRate is the advisory optical frame display rate (frames/second)
	FrameRate int `json:"frameRate,omitempty" yaml:"frameRate,omitempty"`

	// Verbose enables debug logging
	Verbose bool `json:"verbose,omitempty" yaml:"verbose,omitempty"`
}

// Validate checks the configuration and fills in defaults where allowed
func (c *DeviceConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Role == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("role"), "role is required (wallet or signer)"))
	} else if !c.Role.Valid() {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("role"), c.Role,
			[]string{string(types.RoleWallet), string(types.RoleSigner)}))
	}

	if c.DataDir == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("dataDir"), "dataDir is required"))
	}
	if c.KeystoreDir == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("keystoreDir"), "keystoreDir is required"))
	}

	if c.NetworkID == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("networkId"), "networkId is required"))
	}
	if c.GenesisHash == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("genesisHash"), "genesisHash is required"))
	}

	switch c.PersistenceType {
	case "":
		c.PersistenceType = PersistenceTypeBadger
	case PersistenceTypeBadger, PersistenceTypeMemory:
	case PersistenceTypeRedis:
		if c.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddress"),
				"redisAddress is required when persistenceType is redis"))
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redisDb"), c.RedisDB,
				"must be between 0 and 15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("persistenceType"), c.PersistenceType,
			[]string{string(PersistenceTypeBadger), string(PersistenceTypeMemory), string(PersistenceTypeRedis)}))
	}

	if c.FrameRate == 0 {
		c.FrameRate = 5
	} else if c.FrameRate < 1 || c.FrameRate > 30 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("frameRate"), c.FrameRate,
			"must be between 1 and 30 frames per second"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// String returns a loggable summary without secrets
func (c *DeviceConfig) String() string {
	return fmt.Sprintf("role=%s network=%s persistence=%s dataDir=%s", c.Role, c.NetworkID, c.PersistenceType, c.DataDir)
}
