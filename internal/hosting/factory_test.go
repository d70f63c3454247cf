package hosting

import (
	"context"
	"testing"
)

func TestResolveProviderType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider string
		remote   string
		wantType ProviderType
		wantErr  bool
	}{
		{
			name:     "explicit github",
			provider: "github",
			wantType: ProviderGitHub,
		},
		{
			name:     "explicit gitlab",
			provider: "gitlab",
			wantType: ProviderGitLab,
		},
		{
			name:     "explicit memory",
			provider: "memory",
			wantType: ProviderMemory,
		},
		{
			name:     "auto detects from remote",
			provider: "auto",
			remote:   "https://gitlab.com/group/repo.git",
			wantType: ProviderGitLab,
		},
		{
			name:     "empty provider is auto",
			remote:   "git@github.com:owner/repo.git",
			wantType: ProviderGitHub,
		},
		{
			name:     "unknown provider returns error",
			provider: "bitbucket",
			wantErr:  true,
		},
		{
			name:    "auto with undetectable remote",
			remote:  "owner/repo",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := resolveProviderType(tt.remote, Config{Provider: tt.provider})
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveProviderType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.wantType {
				t.Errorf("resolveProviderType() = %q, want %q", got, tt.wantType)
			}
		})
	}
}

func TestNewProvider_AutoRequiresGitRepo(t *testing.T) {
	t.Parallel()

	// No repository configured and no git checkout to fall back to.
	_, err := NewProvider(context.Background(), t.TempDir(), Config{})
	if err == nil {
		t.Fatal("NewProvider() without repository outside a git checkout should return error")
	}
}

func TestNewProvider_UnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(context.Background(), "", Config{Provider: "bitbucket", Repository: "owner/repo"})
	if err == nil {
		t.Fatal("NewProvider() with unknown provider should return error")
	}
}

func TestNewProvider_Unregistered(t *testing.T) {
	t.Parallel()

	// The provider packages are not imported here, so nothing is registered.
	_, err := NewProvider(context.Background(), "", Config{Provider: "github", Repository: "owner/repo"})
	if err == nil {
		t.Fatal("NewProvider() with no registered constructor should return error")
	}
}

func TestAttributionHeader(t *testing.T) {
	t.Parallel()

	if got := AttributionHeader("", "2024-01-01"); got != "" {
		t.Errorf("AttributionHeader without author = %q", got)
	}
	want := "_Originally posted by @octo on 2024-01-01_\n\n"
	if got := AttributionHeader("octo", "2024-01-01"); got != want {
		t.Errorf("AttributionHeader() = %q, want %q", got, want)
	}
}
