package gitlab

import "github.com/randalmurphal/repovault/internal/hosting"

// resolveToken reads a personal or project access token. GITLAB_TOKEN wins
// over GITLAB_PRIVATE_TOKEN.
func resolveToken(cfg hosting.Config) (string, error) {
	return hosting.TokenFromEnv(cfg, hosting.ProviderGitLab, "GITLAB_TOKEN", "GITLAB_PRIVATE_TOKEN")
}
