package hosting

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// Config holds hosting provider configuration.
type Config struct {
	// Provider type: "github", "gitlab", "memory" or "auto" (default).
	// When "auto", the provider is detected from the repository URL.
	Provider string `yaml:"provider" json:"provider" mapstructure:"provider"`

	// BaseURL for self-hosted instances (e.g., "https://gitlab.company.com").
	// Leave empty for github.com / gitlab.com.
	BaseURL string `yaml:"base_url" json:"base_url,omitempty" mapstructure:"base_url"`

	// TokenEnvVar overrides the default token environment variable name.
	// Default: GITHUB_TOKEN for GitHub, GITLAB_TOKEN for GitLab.
	TokenEnvVar string `yaml:"token_env_var" json:"token_env_var,omitempty" mapstructure:"token_env_var"`

	// Repository is a remote URL or an "owner/repo" path. When empty the
	// origin remote of the working directory is used.
	Repository string `yaml:"repository" json:"repository,omitempty" mapstructure:"repository"`

	// RequestsPerSecond caps API calls; zero means the provider default.
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second,omitempty" mapstructure:"requests_per_second"`
}

// NewProviderFunc is a constructor function for creating a hosting provider.
// This is used by the factory to avoid import cycles. The actual constructors
// are registered at init time by the provider packages.
type NewProviderFunc func(remote string, cfg Config) (Provider, error)

// Provider constructors registered by provider packages.
var providerConstructors = map[ProviderType]NewProviderFunc{}

// RegisterProvider registers a provider constructor.
// Called from init() in provider packages (github/, gitlab/, memory/).
func RegisterProvider(providerType ProviderType, constructor NewProviderFunc) {
	providerConstructors[providerType] = constructor
}

// NewProvider creates a hosting provider for cfg.Repository, falling back to
// the origin remote of workDir.
func NewProvider(ctx context.Context, workDir string, cfg Config) (Provider, error) {
	remote := strings.TrimSpace(cfg.Repository)
	if remote == "" {
		var err error
		remote, err = getRemoteURL(ctx, workDir)
		if err != nil {
			return nil, fmt.Errorf("resolve repository: %w", err)
		}
	}

	providerType, err := resolveProviderType(remote, cfg)
	if err != nil {
		return nil, err
	}

	constructor, ok := providerConstructors[providerType]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %q (registered: %v)", providerType, registeredProviders())
	}

	return constructor(remote, cfg)
}

// resolveProviderType determines which provider to use.
func resolveProviderType(remote string, cfg Config) (ProviderType, error) {
	if cfg.Provider != "" && cfg.Provider != "auto" {
		pt := ProviderType(cfg.Provider)
		if pt != ProviderGitHub && pt != ProviderGitLab && pt != ProviderMemory {
			return "", fmt.Errorf("unknown provider %q (supported: github, gitlab, memory)", cfg.Provider)
		}
		return pt, nil
	}

	r, err := ParseRemote(remote)
	if err != nil {
		return "", err
	}
	if r.Kind == ProviderUnknown {
		return "", fmt.Errorf("cannot detect hosting provider from %q (set repository.provider explicitly)", remote)
	}
	return r.Kind, nil
}

// getRemoteURL gets the origin remote URL for the repo at workDir.
func getRemoteURL(ctx context.Context, workDir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "remote", "get-url", "origin")
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("get remote URL: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

func registeredProviders() []ProviderType {
	var providers []ProviderType
	for pt := range providerConstructors {
		providers = append(providers, pt)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}
