package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PaperSize is a page size in inches.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// Viewport is the browser window used for layout, in device-independent pixels.
type Viewport struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	Scale  float64 `yaml:"scale"`
}

// PostgresConfig describes the API token database.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config is the full service configuration.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
		Route   string `yaml:"route"`
	} `yaml:"server"`

	Limits struct {
		MaxHTMLBytes int `yaml:"max_html_bytes"`
		MaxPDFBytes  int `yaml:"max_pdf_bytes"`
	} `yaml:"limits"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
		RedisHost       string        `yaml:"redis_host"`
		RateLimitDB     int           `yaml:"redis_rate_db"`
		PDFCacheDB      int           `yaml:"redis_pdf_db"`
	} `yaml:"cache"`

	PDF struct {
		Engine                string               `yaml:"engine"`
		ChromePath            string               `yaml:"chrome_path"`
		ChromeNoSandbox       bool                 `yaml:"chrome_no_sandbox"`
		ChromeArgs            []string             `yaml:"chrome_args"`
		UserDataDir           string               `yaml:"user_data_dir"`
		MaxConcurrentBrowsers int                  `yaml:"max_concurrent_browsers"`
		AcquireTimeout        time.Duration        `yaml:"acquire_timeout"`
		NavigationTimeout     time.Duration        `yaml:"navigation_timeout"`
		LoadTimeout           time.Duration        `yaml:"load_timeout"`
		RenderTimeout         time.Duration        `yaml:"render_timeout"`
		Viewport              Viewport             `yaml:"viewport"`
		PaperFormat           string               `yaml:"paper_format"`
		PaperSizes            map[string]PaperSize `yaml:"paper_sizes"`
		MarginInches          float64              `yaml:"margin_inches"`
		PrintBackground       *bool                `yaml:"print_background"`
		Filename              string               `yaml:"filename"`
	} `yaml:"pdf"`

	Auth struct {
		Enabled        bool           `yaml:"enabled"`
		Postgres       PostgresConfig `yaml:"postgres"`
		ReloadInterval time.Duration  `yaml:"reload_interval"`
	} `yaml:"auth"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		UserLimit         int           `yaml:"user_limit"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`
}

// Engines understood by pdf.engine.
const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"
)

// Default returns the configuration used when no file is present. The page
// settings reproduce the endpoint's fixed rendering contract.
func Default() Config {
	var cfg Config
	cfg.Server.Host = ""
	cfg.Server.Port = ":3000"
	cfg.Server.Route = "/api/success"

	cfg.Limits.MaxHTMLBytes = 5 * 1024 * 1024
	cfg.Limits.MaxPDFBytes = 50 * 1024 * 1024

	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 10
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 7

	cfg.Cache.PDFCacheTTL = 10 * time.Minute
	cfg.Cache.PDFCacheDB = 1

	cfg.PDF.Engine = EngineChromedp
	cfg.PDF.ChromeNoSandbox = true
	cfg.PDF.MaxConcurrentBrowsers = 4
	cfg.PDF.AcquireTimeout = 30 * time.Second
	cfg.PDF.NavigationTimeout = 15 * time.Second
	cfg.PDF.LoadTimeout = 15 * time.Second
	cfg.PDF.RenderTimeout = 60 * time.Second
	cfg.PDF.Viewport = Viewport{Width: 794, Height: 1123, Scale: 1}
	cfg.PDF.PaperFormat = "A4"
	cfg.PDF.PaperSizes = map[string]PaperSize{
		"A3":     {Width: 11.69, Height: 16.54},
		"A4":     {Width: 8.27, Height: 11.69},
		"A5":     {Width: 5.83, Height: 8.27},
		"LETTER": {Width: 8.5, Height: 11},
		"LEGAL":  {Width: 8.5, Height: 14},
	}
	cfg.PDF.MarginInches = 0.5
	cfg.PDF.Filename = "generated.pdf"

	cfg.Auth.ReloadInterval = time.Minute
	cfg.RateLimiter.Interval = time.Minute
	return cfg
}

// Load reads the file named by CONFIG_PATH, or config.yaml.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFrom(path)
}

// LoadFrom reads path on top of Default, applies environment overrides and
// validates the result. A missing file yields the defaults; any other read,
// parse or validation problem panics.
func LoadFrom(path string) Config {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic(fmt.Sprintf("config: parse %s: %v", path, err))
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

func applyEnv(cfg *Config) {
	if cfg.PDF.ChromePath == "" {
		for _, key := range []string{"CHROME_BIN", "CHROME_PATH"} {
			if v := os.Getenv(key); v != "" {
				cfg.PDF.ChromePath = v
				break
			}
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if !strings.HasPrefix(v, ":") {
			v = ":" + v
		}
		cfg.Server.Port = v
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Server.Route == "" || !strings.HasPrefix(c.Server.Route, "/") {
		return fmt.Errorf("server.route must start with '/': %q", c.Server.Route)
	}
	if c.Limits.MaxHTMLBytes <= 0 {
		return fmt.Errorf("limits.max_html_bytes must be positive")
	}
	if c.Limits.MaxPDFBytes <= 0 {
		return fmt.Errorf("limits.max_pdf_bytes must be positive")
	}
	switch c.PDF.Engine {
	case EngineChromedp, EngineRod:
	default:
		return fmt.Errorf("pdf.engine must be %q or %q, got %q", EngineChromedp, EngineRod, c.PDF.Engine)
	}
	if c.PDF.MaxConcurrentBrowsers < 0 {
		return fmt.Errorf("pdf.max_concurrent_browsers must not be negative")
	}
	if c.PDF.NavigationTimeout <= 0 || c.PDF.LoadTimeout <= 0 {
		return fmt.Errorf("pdf.navigation_timeout and pdf.load_timeout must be positive")
	}
	if c.PDF.Viewport.Width <= 0 || c.PDF.Viewport.Height <= 0 || c.PDF.Viewport.Scale <= 0 {
		return fmt.Errorf("pdf.viewport dimensions must be positive")
	}
	if _, ok := c.PDF.PaperSizes[strings.ToUpper(c.PDF.PaperFormat)]; !ok {
		return fmt.Errorf("pdf.paper_format %q is not in pdf.paper_sizes", c.PDF.PaperFormat)
	}
	if c.PDF.MarginInches < 0 {
		return fmt.Errorf("pdf.margin_inches must not be negative")
	}
	if c.PDF.Filename == "" || strings.ContainsAny(c.PDF.Filename, "\"\r\n") {
		return fmt.Errorf("pdf.filename is empty or contains invalid characters")
	}
	if c.Auth.Enabled && c.Auth.ReloadInterval <= 0 {
		return fmt.Errorf("auth.reload_interval must be positive")
	}
	if c.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	}
	if (c.RateLimiter.UserLimit > 0 || c.Auth.Enabled) && c.RateLimiter.Interval <= 0 {
		return fmt.Errorf("rate_limiter.interval must be positive")
	}
	return nil
}

// Paper returns the configured paper size.
func (c Config) Paper() PaperSize {
	return c.PDF.PaperSizes[strings.ToUpper(c.PDF.PaperFormat)]
}

// PrintBackground reports whether background graphics are printed; on unless
// explicitly disabled.
func (c Config) PrintBackground() bool {
	return c.PDF.PrintBackground == nil || *c.PDF.PrintBackground
}
