package hosting

import (
	"fmt"
	"net/url"
	"strings"
)

// MemoryScheme prefixes repository addresses served by the in-memory provider.
const MemoryScheme = "memory://"

// Remote is a parsed repository address.
type Remote struct {
	// Host is empty for bare "owner/repo" paths and memory projects.
	Host string
	// Owner may span several segments for GitLab subgroups.
	Owner string
	Repo  string
	Kind  ProviderType
}

// Path returns "owner/repo".
func (r Remote) Path() string {
	return r.Owner + "/" + r.Repo
}

// ParseRemote parses a repository address. Accepted forms:
//
//	memory://owner/repo
//	https://github.com/owner/repo(.git)
//	ssh://git@github.com:22/owner/repo.git
//	git@gitlab.company.com:group/subgroup/repo.git
//	owner/repo
//
// Kind is ProviderUnknown when the host does not identify a provider.
func ParseRemote(raw string) (Remote, error) {
	s := strings.TrimSpace(raw)
	var r Remote
	var path string

	switch {
	case strings.HasPrefix(strings.ToLower(s), MemoryScheme):
		r.Kind = ProviderMemory
		path = s[len(MemoryScheme):]
	case strings.Contains(s, "://"):
		u, err := url.Parse(s)
		if err != nil {
			return Remote{}, fmt.Errorf("parse remote %q: %w", raw, err)
		}
		r.Host = strings.ToLower(u.Hostname())
		path = u.Path
	case isSCPLike(s):
		host, rest, _ := strings.Cut(s, ":")
		if _, h, ok := strings.Cut(host, "@"); ok {
			host = h
		}
		r.Host = strings.ToLower(host)
		path = rest
	default:
		path = s
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	idx := strings.LastIndex(path, "/")
	if idx <= 0 || idx == len(path)-1 {
		return Remote{}, fmt.Errorf("could not parse owner/repo from %q", raw)
	}
	r.Owner, r.Repo = path[:idx], path[idx+1:]

	if r.Kind == "" {
		r.Kind = kindForHost(r.Host)
	}
	return r, nil
}

// isSCPLike reports whether s has the "[user@]host:path" shape.
func isSCPLike(s string) bool {
	colon := strings.Index(s, ":")
	if colon <= 0 {
		return false
	}
	return !strings.Contains(s[:colon], "/")
}

// kindForHost maps github.com, gitlab.com and their self-hosted
// "github.<corp>" / "gitlab.<corp>" forms to a provider.
func kindForHost(host string) ProviderType {
	switch {
	case host == "":
		return ProviderUnknown
	case host == "github.com" || strings.HasPrefix(host, "github."):
		return ProviderGitHub
	case host == "gitlab.com" || strings.HasPrefix(host, "gitlab."):
		return ProviderGitLab
	default:
		return ProviderUnknown
	}
}

// OwnerRepoFrom parses remote and fails when either half is missing.
func OwnerRepoFrom(remote string) (string, string, error) {
	r, err := ParseRemote(remote)
	if err != nil {
		return "", "", err
	}
	return r.Owner, r.Repo, nil
}
