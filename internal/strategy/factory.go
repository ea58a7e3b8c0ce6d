package strategy

import (
	"fmt"

	"engagement-tracker/pkg/types"
)

// New maps (platform, configured method) to a concrete strategy at
// construction time. An unsupported combination fails immediately so
// misconfiguration is caught before any network activity begins; there is
// no silent fallback.
func New(platform types.Platform, method string, deps Deps) (Strategy, error) {
	switch method {
	case MethodRapidAPI:
		switch platform {
		case types.PlatformInstagram, types.PlatformTikTok:
			return newRapidAPIStrategy(platform, deps)
		}
	case MethodGraphAPI:
		if platform == types.PlatformInstagram {
			return newGraphAPIStrategy(deps)
		}
		return nil, fmt.Errorf("method %q supports instagram only, got platform %q", method, platform)
	case MethodBrowser:
		switch platform {
		case types.PlatformInstagram, types.PlatformTikTok:
			return newBrowserStrategy(platform, deps)
		}
	default:
		return nil, fmt.Errorf("unknown fetch method %q for platform %q", method, platform)
	}
	return nil, fmt.Errorf("platform %q is not supported by method %q", platform, method)
}

// ForIdentity resolves the configured method for an identity's platform
// and constructs the strategy.
func ForIdentity(identity types.Identity, deps Deps) (Strategy, error) {
	platformCfg, ok := deps.Config.Platforms[string(identity.Platform)]
	if !ok {
		return nil, fmt.Errorf("no fetch method configured for platform %q", identity.Platform)
	}
	return New(identity.Platform, platformCfg.Method, deps)
}
