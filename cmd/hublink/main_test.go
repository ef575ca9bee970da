package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"hublink/pkg/config"
	"hublink/pkg/identity"
)

func TestWarnKeyMismatch(t *testing.T) {
	id, seed, err := identity.Generate("https://me.example")
	require.NoError(t, err)
	other, _, err := identity.Generate("https://other.example")
	require.NoError(t, err)

	mismatched, err := identity.New("https://me.example", seed, other.PublicKeyMultibase())
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)

	assert.False(t, warnKeyMismatch(id, logger))
	assert.False(t, warnKeyMismatch(identity.NewPublic("https://me.example"), logger))
	assert.Equal(t, 0, logs.Len())

	assert.True(t, warnKeyMismatch(mismatched, logger))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Configured public key does not match the private key seed", entry.Message)
	assert.Equal(t, other.PublicKeyMultibase(), entry.ContextMap()["public_key"])
}

func TestIdentitySavePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvConfigDir, dir)

	prev := configFile
	t.Cleanup(func() { configFile = prev })

	configFile = ""
	assert.Equal(t, filepath.Join(dir, "config.json"), identitySavePath())

	configFile = filepath.Join(dir, "hublink.yaml")
	assert.Equal(t, configFile, identitySavePath())

	// The saved YAML identity is what a later --config run loads.
	id, seed, err := identity.Generate("https://me.example")
	require.NoError(t, err)
	cfg := config.Default()
	cfg.Identity = config.IdentityConfig{
		InstanceID:         id.InstanceID(),
		PrivateKeySeed:     seed,
		PublicKeyMultibase: id.PublicKeyMultibase(),
	}
	require.NoError(t, cfg.Save(identitySavePath()))

	loaded, err := config.Load(configFile)
	require.NoError(t, err)
	built, err := loaded.BuildIdentity(false)
	require.NoError(t, err)
	assert.True(t, isAuthenticated(built))
}
