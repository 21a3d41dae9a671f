// Package rodengine renders documents with go-rod, as a drop-in alternative
// to the chromedp engine.
package rodengine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"pdf-export/internal/domain"
	"pdf-export/internal/infra/browser"
)

// loadCompleteFunc resolves once the document has fired its load event.
const loadCompleteFunc = `() => new Promise(resolve => {
	if (document.readyState === 'complete') {
		resolve(true);
		return;
	}
	window.addEventListener('load', () => resolve(true), { once: true });
})`

// ErrBrowserNotFound is returned when no browser path is configured and none
// is installed. The launcher would otherwise download one on first use.
var ErrBrowserNotFound = errors.New("no Chrome or Chromium found; set pdf.chrome_path or CHROME_BIN")

// lookPath finds a system browser.
var lookPath = launcher.LookPath

// Options configure the rod engine.
type Options struct {
	Launch        browser.LaunchOptions
	Page          domain.PageSettings
	RenderTimeout time.Duration
}

// Renderer renders documents with a fresh rod-launched browser per call.
type Renderer struct {
	opts Options
	gate *browser.Gate
}

var _ domain.Renderer = (*Renderer)(nil)

// NewRenderer returns a rod-backed renderer. A nil gate means unbounded.
func NewRenderer(opts Options, gate *browser.Gate) *Renderer {
	if gate == nil {
		gate = browser.NewGate(0, 0)
	}
	return &Renderer{opts: opts, gate: gate}
}

// Render launches a browser, renders document and tears the browser down.
func (r *Renderer) Render(ctx context.Context, document string) ([]byte, error) {
	release, err := r.gate.Acquire(ctx)
	if err != nil {
		return nil, domain.E(domain.KindUnavailable, "acquire browser", err)
	}
	defer release()

	if r.opts.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RenderTimeout)
		defer cancel()
	}

	b, closeBrowser, err := r.launch(ctx)
	r.gate.RecordLaunch(err)
	if err != nil {
		return nil, domain.E(domain.KindLaunch, "launch browser", err)
	}
	defer closeBrowser()

	return renderPage(b, document, r.opts.Page)
}

func newLauncher(ctx context.Context, lo browser.LaunchOptions, profileDir string) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(true).
		Leakless(false).
		UserDataDir(profileDir)
	if lo.ExecPath != "" {
		l = l.Bin(lo.ExecPath)
	}
	for _, f := range lo.Flags() {
		if f.Value == "" {
			l = l.Set(flags.Flag(f.Name))
			continue
		}
		l = l.Set(flags.Flag(f.Name), f.Value)
	}
	return l
}

// launch starts the browser process and connects to it. The returned func
// closes the connection, kills the process and removes the profile dir; it
// must run on every exit path.
func (r *Renderer) launch(ctx context.Context) (*rod.Browser, func(), error) {
	lo := r.opts.Launch
	if lo.ExecPath == "" {
		bin, ok := lookPath()
		if !ok {
			return nil, nil, ErrBrowserNotFound
		}
		lo.ExecPath = bin
	}

	dir, removeProfile, err := browser.NewProfileDir(lo.ProfileBase)
	if err != nil {
		return nil, nil, err
	}

	l := newLauncher(ctx, lo, dir)
	teardown := func() {
		l.Kill()
		removeProfile()
	}

	u, err := l.Launch()
	if err != nil {
		teardown()
		return nil, nil, err
	}

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		teardown()
		return nil, nil, err
	}
	return b, func() {
		_ = b.Close()
		l.Kill()
		// The process has started, so Cleanup's wait for exit terminates.
		l.Cleanup()
		removeProfile()
	}, nil
}

func renderPage(b *rod.Browser, document string, s domain.PageSettings) ([]byte, error) {
	p, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, domain.E(domain.KindLaunch, "open page", err)
	}
	defer p.Close()

	err = p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.ViewportWidth,
		Height:            s.ViewportHeight,
		DeviceScaleFactor: s.DeviceScaleFactor,
	})
	if err != nil {
		return nil, domain.E(domain.KindNavigation, "set viewport", err)
	}

	if err := withTimeout(p, s.NavigationTimeout).SetDocumentContent(document); err != nil {
		return nil, domain.E(domain.KindNavigation, "set content", err)
	}
	if _, err := withTimeout(p, s.NavigationTimeout).Element("body"); err != nil {
		return nil, domain.E(domain.KindNavigation, "set content", err)
	}

	if _, err := withTimeout(p, s.LoadTimeout).Eval(loadCompleteFunc); err != nil {
		return nil, domain.E(domain.KindLoad, "wait for load", err)
	}

	reader, err := p.PDF(&proto.PagePrintToPDF{
		PaperWidth:      &s.PaperWidth,
		PaperHeight:     &s.PaperHeight,
		MarginTop:       &s.Margin,
		MarginBottom:    &s.Margin,
		MarginLeft:      &s.Margin,
		MarginRight:     &s.Margin,
		PrintBackground: s.PrintBackground,
	})
	if err != nil {
		return nil, domain.E(domain.KindSerialization, "print to pdf", err)
	}
	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, domain.E(domain.KindSerialization, "print to pdf", fmt.Errorf("reading PDF stream: %w", err))
	}
	if !domain.IsPDF(buf) {
		return nil, domain.E(domain.KindSerialization, "print to pdf", domain.ErrNotPDF)
	}
	return buf, nil
}

func withTimeout(p *rod.Page, d time.Duration) *rod.Page {
	if d <= 0 {
		return p
	}
	return p.Timeout(d)
}

// Stats exposes the gate usage of this engine.
func (r *Renderer) Stats() browser.Stats {
	return r.gate.Stats()
}

// Close stops accepting renders.
func (r *Renderer) Close() error {
	r.gate.Close()
	return nil
}
