package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-tracker/internal/config"
	"engagement-tracker/pkg/types"
)

func TestNewRejectsUnsupportedCombinations(t *testing.T) {
	deps := Deps{Config: testConfig(1), Logger: testLogger()}

	_, err := New(types.PlatformTikTok, MethodGraphAPI, deps)
	assert.Error(t, err, "graph API is instagram-only")

	_, err = New(types.PlatformInstagram, "carrier-pigeon", deps)
	assert.Error(t, err, "unknown methods fail loudly")

	_, err = New(types.PlatformInstagram, MethodBrowser, deps)
	assert.Error(t, err, "browser method needs a browser manager")
}

func TestNewBuildsRapidAPIStrategies(t *testing.T) {
	deps := Deps{Config: testConfig(1), Logger: testLogger()}

	for _, platform := range []types.Platform{types.PlatformInstagram, types.PlatformTikTok} {
		strat, err := New(platform, MethodRapidAPI, deps)
		require.NoError(t, err, "platform=%s", platform)
		require.NotNil(t, strat)
	}
}

func TestForIdentityResolvesConfiguredMethod(t *testing.T) {
	cfg := testConfig(1)
	cfg.Platforms = map[string]config.PlatformConfig{
		"tiktok": {Method: MethodRapidAPI},
	}
	deps := Deps{Config: cfg, Logger: testLogger()}

	strat, err := ForIdentity(types.NewIdentity("creator", types.PlatformTikTok), deps)
	require.NoError(t, err)
	assert.IsType(t, &rapidAPIStrategy{}, strat)

	_, err = ForIdentity(types.NewIdentity("creator", types.PlatformInstagram), deps)
	assert.Error(t, err, "platforms without a configured method fail")
}
