package versioncheck

import "time"

// VersionCache is the on-disk record of when gitai last checked for a
// newer release, so every invocation doesn't hit the network.
type VersionCache struct {
	LastCheckTime time.Time `json:"last_check_time"`
}

// GitHubRelease is the subset of the GitHub releases API response
// needed to decide whether the running binary is outdated.
type GitHubRelease struct {
	TagName    string `json:"tag_name"`
	Prerelease bool   `json:"prerelease"`
}

// githubAPIURL is the GitHub API endpoint for fetching the latest release.
// A var, not a const, so tests can override it.
var githubAPIURL = "https://api.github.com/repos/gitattrib/gitai/releases/latest"

const (
	// checkInterval is the duration between version checks.
	checkInterval = 24 * time.Hour

	// httpTimeout is the timeout for HTTP requests to the GitHub API.
	httpTimeout = 2 * time.Second

	// cacheFileName is the name of the cache file in the global config directory.
	cacheFileName = "version_check.json"

	// globalConfigDirName is the global config directory under the user's home.
	globalConfigDirName = ".config/gitai"
)
