package chrome

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"pdf-export/internal/domain"
	"pdf-export/internal/infra/browser"
	"pdf-export/internal/infra/logging"
)

// loadCompleteScript resolves once the document has fired its load event.
const loadCompleteScript = `new Promise(resolve => {
	if (document.readyState === 'complete') {
		resolve(true);
		return;
	}
	window.addEventListener('load', () => resolve(true), { once: true });
})`

// Options configure the chromedp engine.
type Options struct {
	Launch        browser.LaunchOptions
	Page          domain.PageSettings
	RenderTimeout time.Duration
}

// Renderer renders documents with a fresh headless Chrome per call.
type Renderer struct {
	opts Options
	gate *browser.Gate
}

var _ domain.Renderer = (*Renderer)(nil)

// NewRenderer returns a chromedp-backed renderer. gate bounds concurrent
// browser processes; a nil gate means unbounded.
func NewRenderer(opts Options, gate *browser.Gate) *Renderer {
	if gate == nil {
		gate = browser.NewGate(0, 0)
	}
	return &Renderer{opts: opts, gate: gate}
}

// Render launches a browser, renders document and closes the browser. A
// session that dies underneath the render is retried once on a new browser.
func (r *Renderer) Render(ctx context.Context, document string) ([]byte, error) {
	pdf, err := r.renderOnce(ctx, document)
	if err != nil && ctx.Err() == nil && browser.IsSessionInterrupted(err) {
		logging.Warn("Chrome session interrupted; retrying once with a new browser", "error", err)
		return r.renderOnce(ctx, document)
	}
	return pdf, err
}

func (r *Renderer) renderOnce(ctx context.Context, document string) ([]byte, error) {
	release, err := r.gate.Acquire(ctx)
	if err != nil {
		return nil, domain.E(domain.KindUnavailable, "acquire browser", err)
	}
	defer release()

	inst, err := launch(ctx, r.opts.Launch)
	r.gate.RecordLaunch(err)
	if err != nil {
		return nil, domain.E(domain.KindLaunch, "launch browser", err)
	}
	defer inst.Close()

	runCtx := inst.ctx
	if r.opts.RenderTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, r.opts.RenderTimeout)
		defer cancel()
	}
	return renderDocument(runCtx, document, r.opts.Page)
}

// renderDocument runs the render steps in order inside an attached tab:
// viewport and content, load completion, PDF serialization.
func renderDocument(ctx context.Context, document string, s domain.PageSettings) ([]byte, error) {
	if err := loadDocument(ctx, document, s); err != nil {
		return nil, err
	}
	if err := waitForLoadComplete(ctx, s.LoadTimeout); err != nil {
		return nil, domain.E(domain.KindLoad, "wait for load", err)
	}
	return printToPDF(ctx, s)
}

// loadDocument sets the viewport and replaces the blank page's content,
// returning once the DOM is parsed or the navigation timeout expires.
func loadDocument(ctx context.Context, document string, s domain.PageSettings) error {
	if s.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.NavigationTimeout)
		defer cancel()
	}
	err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(s.ViewportWidth), int64(s.ViewportHeight), chromedp.EmulateScale(s.DeviceScaleFactor)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, document).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return domain.E(domain.KindNavigation, "set content", err)
}

// waitForLoadComplete blocks until the page's load event has fired. Expiry of
// timeout is a failure, not a signal to print whatever is there.
func waitForLoadComplete(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var loaded bool
	return chromedp.Run(ctx, chromedp.Evaluate(loadCompleteScript, &loaded,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		},
	))
}

func printToPDF(ctx context.Context, s domain.PageSettings) ([]byte, error) {
	var buf []byte
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, _, err = page.PrintToPDF().
			WithPrintBackground(s.PrintBackground).
			WithPaperWidth(s.PaperWidth).
			WithPaperHeight(s.PaperHeight).
			WithMarginTop(s.Margin).
			WithMarginBottom(s.Margin).
			WithMarginLeft(s.Margin).
			WithMarginRight(s.Margin).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, domain.E(domain.KindSerialization, "print to pdf", err)
	}
	if !domain.IsPDF(buf) {
		return nil, domain.E(domain.KindSerialization, "print to pdf", domain.ErrNotPDF)
	}
	return buf, nil
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
