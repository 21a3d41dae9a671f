package server

import (
	"github.com/redis/go-redis/v9"

	"pdf-export/internal/config"
	"pdf-export/internal/domain"
	"pdf-export/internal/infra/browser"
	"pdf-export/internal/infra/cache"
	"pdf-export/internal/infra/chrome"
	"pdf-export/internal/infra/rodengine"
)

// Engine is a renderer that owns a browser admission gate.
type Engine interface {
	domain.Renderer
	Stats() browser.Stats
	Close() error
}

// PageSettings maps the pdf section of the config onto render settings.
func PageSettings(cfg config.Config) domain.PageSettings {
	paper := cfg.Paper()
	return domain.PageSettings{
		ViewportWidth:     cfg.PDF.Viewport.Width,
		ViewportHeight:    cfg.PDF.Viewport.Height,
		DeviceScaleFactor: cfg.PDF.Viewport.Scale,
		PaperWidth:        paper.Width,
		PaperHeight:       paper.Height,
		Margin:            cfg.PDF.MarginInches,
		PrintBackground:   cfg.PrintBackground(),
		NavigationTimeout: cfg.PDF.NavigationTimeout,
		LoadTimeout:       cfg.PDF.LoadTimeout,
	}
}

// LaunchOptions maps the pdf section of the config onto browser launch options.
func LaunchOptions(cfg config.Config) browser.LaunchOptions {
	return browser.LaunchOptions{
		ExecPath:    cfg.PDF.ChromePath,
		NoSandbox:   cfg.PDF.ChromeNoSandbox,
		Args:        cfg.PDF.ChromeArgs,
		ProfileBase: cfg.PDF.UserDataDir,
	}
}

// NewEngine builds the engine named by pdf.engine.
func NewEngine(cfg config.Config) Engine {
	gate := browser.NewGate(cfg.PDF.MaxConcurrentBrowsers, cfg.PDF.AcquireTimeout)
	launch := LaunchOptions(cfg)
	page := PageSettings(cfg)

	if cfg.PDF.Engine == config.EngineRod {
		return rodengine.NewRenderer(rodengine.Options{
			Launch:        launch,
			Page:          page,
			RenderTimeout: cfg.PDF.RenderTimeout,
		}, gate)
	}
	return chrome.NewRenderer(chrome.Options{
		Launch:        launch,
		Page:          page,
		RenderTimeout: cfg.PDF.RenderTimeout,
	}, gate)
}

// withCache puts the Redis PDF cache in front of r when it is enabled and a
// client is available.
func withCache(r domain.Renderer, cfg config.Config, rdb *redis.Client) domain.Renderer {
	if !cfg.Cache.PDFCacheEnabled || rdb == nil {
		return r
	}
	return &cache.Renderer{
		Next:     r,
		Cache:    cache.New(rdb, cfg.Cache.PDFCacheTTL),
		Settings: PageSettings(cfg),
	}
}
