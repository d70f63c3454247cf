package github

import "github.com/randalmurphal/repovault/internal/hosting"

// resolveToken reads the token used for both the REST API and git over https.
func resolveToken(cfg hosting.Config) (string, error) {
	return hosting.TokenFromEnv(cfg, hosting.ProviderGitHub, "GITHUB_TOKEN")
}
