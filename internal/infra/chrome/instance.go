package chrome

import (
	"context"
	"sync"

	"github.com/chromedp/chromedp"

	"pdf-export/internal/infra/browser"
)

// instance is one headless Chrome process with its first tab, owned by a
// single render. Close is idempotent and tears down tab, process and profile.
type instance struct {
	ctx context.Context

	cancelTab     context.CancelFunc
	cancelAlloc   context.CancelFunc
	removeProfile func()
	once          sync.Once
}

func allocatorOptions(lo browser.LaunchOptions, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.UserDataDir(profileDir))
	if lo.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(lo.ExecPath))
	}
	for _, f := range lo.Flags() {
		if f.Value == "" {
			opts = append(opts, chromedp.Flag(f.Name, true))
			continue
		}
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	return opts
}

// launch starts a browser and blocks until its first tab is attached.
func launch(ctx context.Context, lo browser.LaunchOptions) (*instance, error) {
	dir, removeProfile, err := browser.NewProfileDir(lo.ProfileBase)
	if err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(lo, dir)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	inst := &instance{
		ctx:           tabCtx,
		cancelTab:     cancelTab,
		cancelAlloc:   cancelAlloc,
		removeProfile: removeProfile,
	}
	// Running no actions forces the allocator to start the process.
	if err := chromedp.Run(tabCtx); err != nil {
		inst.Close()
		return nil, err
	}
	return inst, nil
}

// Close closes the tab and browser, waits for the process to exit and removes
// the profile directory.
func (i *instance) Close() {
	i.once.Do(func() {
		i.cancelTab()
		i.cancelAlloc()
		i.removeProfile()
	})
}
