package hosting

import (
	"fmt"
	"os"
	"strings"
)

// TokenFromEnv returns the API token for kind. When cfg.TokenEnvVar is set it
// is the only variable consulted; otherwise defaults are tried in order.
func TokenFromEnv(cfg Config, kind ProviderType, defaults ...string) (string, error) {
	vars := defaults
	if cfg.TokenEnvVar != "" {
		vars = []string{cfg.TokenEnvVar}
	}
	for _, name := range vars {
		if token := strings.TrimSpace(os.Getenv(name)); token != "" {
			return token, nil
		}
	}
	return "", fmt.Errorf("%w: no %s token found; export %s or point repository.token_env_var at the variable holding it",
		ErrAuthFailed, kind, strings.Join(vars, " or "))
}
