package model

// Default upstream base URLs
const (
	DefaultGitHubAPI     = "https://api.github.com"
	DefaultPyPIStatsAPI  = "https://pypistats.org/api"
	DefaultPepyAPI       = "https://api.pepy.tech/api/v2"
	DefaultShieldsAPI    = "https://img.shields.io"
	DefaultAnalyticsProp = "371754141"
)

// DefaultPyPIPackages are the packages tracked when none are configured
var DefaultPyPIPackages = []string{
	"ultralytics",
	"ultralytics-actions",
	"ultralytics-thop",
	"hub-sdk",
	"mkdocs-ultralytics-plugin",
	"ultralytics-autoimport",
}

// Endpoints holds the upstream base URLs, overridable for tests and mirrors
type Endpoints struct {
	GitHub    string `json:"github"`
	PyPIStats string `json:"pypistats"`
	Pepy      string `json:"pepy"`
	Shields   string `json:"shields"`
}

// DefaultEndpoints points every collector at the public APIs
var DefaultEndpoints = Endpoints{
	GitHub:    DefaultGitHubAPI,
	PyPIStats: DefaultPyPIStatsAPI,
	Pepy:      DefaultPepyAPI,
	Shields:   DefaultShieldsAPI,
}

// CollectSpec defines which sources a collection run polls
type CollectSpec struct {
	Org                  string   `json:"org"`
	GitHubToken          string   `json:"-"`
	PyPIPackages         []string `json:"pypi_packages"`
	PepyAPIKey           string   `json:"-"`
	AnalyticsPropertyID  string   `json:"analytics_property_id"`
	AnalyticsCredentials string   `json:"-"` // service account JSON; analytics is skipped when empty
	Subreddit            string   `json:"subreddit"`
}
