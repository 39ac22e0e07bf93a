package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, uint64(1_000_000), cfg.Ticket.PriceMicroAlgos)
	assert.Equal(t, uint64(2_000), cfg.Ticket.MaxOrganizerFee)
	assert.Equal(t, 20*time.Second, cfg.QR.TTL)
	assert.Equal(t, 20*time.Second, cfg.QR.Tolerance)
	assert.Equal(t, uint64(4), cfg.Confirmation.MaxRounds)
	assert.True(t, cfg.Confirmation.TimeoutIsSuccess)
	assert.False(t, cfg.Geofence.Enforce)
}

func TestLoadConfigLegacyEnv(t *testing.T) {
	t.Setenv("ORGANIZER_WALLET_ADDRESS", "ORGADDR")
	t.Setenv("ALGOD_MNEMONIC", "word word word")
	t.Setenv("EVENT_ASA_ID", "123456")
	t.Setenv("QR_SECRET", "s3cret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "ORGADDR", cfg.Organizer.WalletAddress)
	assert.Equal(t, "word word word", cfg.Organizer.Mnemonic)
	assert.Equal(t, uint64(123456), cfg.Ticket.DefaultAsaID)
	assert.Equal(t, "s3cret", cfg.QR.Secret)
}

func TestLoadConfigPlaceholderAsaIsUnset(t *testing.T) {
	t.Setenv("EVENT_ASA_ID", "REPLACE_WITH_ASA_ID")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, cfg.Ticket.DefaultAsaID)
}

func TestValidate(t *testing.T) {
	cfg := Config{
		Database: DatabaseConfig{URL: "postgres://x"},
		QR:       QRConfig{Secret: "s", TTL: time.Second},
	}
	require.NoError(t, cfg.Validate())
	require.Error(t, cfg.ValidateStrict())

	cfg.Organizer = OrganizerConfig{WalletAddress: "A", Mnemonic: "m"}
	cfg.Ticket.DefaultAsaID = 1
	require.NoError(t, cfg.ValidateStrict())

	cfg.QR.Secret = ""
	require.Error(t, cfg.Validate())
}
