package config

import "time"

// ScraperConfig configures job board scraping.
type ScraperConfig struct {
	BaseURL     string   `yaml:"base_url" env:"SEEK_BASE_URL"`
	HTTPTimeout string   `yaml:"http_timeout" env:"SCRAPER_HTTP_TIMEOUT"`
	PageDelay   string   `yaml:"page_delay" env:"SCRAPER_PAGE_DELAY"`
	JitterMin   string   `yaml:"jitter_min"`
	JitterMax   string   `yaml:"jitter_max"`
	MaxPages    int      `yaml:"max_pages" env:"SCRAPER_MAX_PAGES"`
	MaxRetries  int      `yaml:"max_retries"`
	UserAgents  []string `yaml:"user_agents"`
}

// BrowserConfig configures the headless browser fallback.
type BrowserConfig struct {
	Disabled          bool     `yaml:"disabled" env:"BROWSER_DISABLED"`
	Bin               string   `yaml:"bin" env:"BROWSER_BIN"`
	Flags             []string `yaml:"flags"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	InstallOnStart    bool     `yaml:"install_on_start" env:"BROWSER_INSTALL"`
	NoSandbox         bool     `yaml:"no_sandbox"`
}

// GetHTTPTimeout returns the plain HTTP fetch timeout.
func (c ScraperConfig) GetHTTPTimeout() time.Duration {
	return parseDuration(c.HTTPTimeout, 15*time.Second)
}

// GetPageDelay returns the pause between result pages.
func (c ScraperConfig) GetPageDelay() time.Duration {
	return parseDuration(c.PageDelay, time.Second)
}

// GetJitter returns the random pre-fetch delay bounds.
func (c ScraperConfig) GetJitter() (time.Duration, time.Duration) {
	lo := parseDuration(c.JitterMin, 800*time.Millisecond)
	hi := parseDuration(c.JitterMax, 1600*time.Millisecond)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// GetNavigationTimeout returns the browser navigation timeout.
func (c BrowserConfig) GetNavigationTimeout() time.Duration {
	return parseDuration(c.NavigationTimeout, 30*time.Second)
}
