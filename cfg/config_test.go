package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withConfig swaps in a copy of the default configuration, mutates it, and
// restores the global afterwards.
func withConfig(t *testing.T, mutate func(c *Configuration)) {
	t.Helper()

	original := Config
	copied := *original
	Config = &copied
	t.Cleanup(func() { Config = original })

	if mutate != nil {
		mutate(Config)
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	withConfig(t, nil)
	assert.NoError(t, Validate())
}

func TestValidate_RejectsUnknownDriver(t *testing.T) {
	withConfig(t, func(c *Configuration) { c.Database.Driver = "postgres" })
	assert.Error(t, Validate())
}

func TestValidate_RejectsEmptyDSN(t *testing.T) {
	withConfig(t, func(c *Configuration) { c.Database.DSN = "" })
	assert.Error(t, Validate())
}

func TestValidate_RejectsZeroPoolSize(t *testing.T) {
	withConfig(t, func(c *Configuration) { c.Database.PoolSize = 0 })
	assert.Error(t, Validate())
}

func TestValidate_NatsRequiresURL(t *testing.T) {
	withConfig(t, func(c *Configuration) {
		c.Bus.Type = BusNATS
		c.Bus.NatsURL = ""
	})
	assert.Error(t, Validate())
}

func TestValidate_KafkaRequiresBrokers(t *testing.T) {
	withConfig(t, func(c *Configuration) {
		c.Bus.Type = BusKafka
		c.Bus.KafkaBrokers = nil
	})
	assert.Error(t, Validate())

	Config.Bus.KafkaBrokers = []string{"127.0.0.1:9092"}
	assert.NoError(t, Validate())
}

func TestValidate_MemoryBusNeedsNoEndpoint(t *testing.T) {
	withConfig(t, func(c *Configuration) {
		c.Bus.Type = BusMemory
		c.Bus.NatsURL = ""
	})
	assert.NoError(t, Validate())
}

func TestValidate_RejectsUnknownBusType(t *testing.T) {
	withConfig(t, func(c *Configuration) { c.Bus.Type = "redis" })
	assert.Error(t, Validate())
}

func TestValidate_RejectsUnknownPayloadFormat(t *testing.T) {
	withConfig(t, func(c *Configuration) { c.Bus.PayloadFormat = "bson" })
	assert.Error(t, Validate())
}

func TestValidate_RejectsNegativeHandlerTimeout(t *testing.T) {
	withConfig(t, func(c *Configuration) { c.Relay.HandlerTimeoutSeconds = -1 })
	assert.Error(t, Validate())
}

func TestValidate_PrometheusPortRange(t *testing.T) {
	withConfig(t, func(c *Configuration) {
		c.Prometheus.Enabled = true
		c.Prometheus.Port = 0
	})
	assert.Error(t, Validate())

	Config.Prometheus.Port = 9090
	assert.NoError(t, Validate())
}

func TestLoad_MissingFileKeepsDefaults(t *testing.T) {
	withConfig(t, func(c *Configuration) { c.InstanceID = 42 })

	require.NoError(t, Load("does-not-exist.toml"))
	assert.Equal(t, "sqlite3", Config.Database.Driver)
	assert.EqualValues(t, 42, Config.InstanceID)
}
