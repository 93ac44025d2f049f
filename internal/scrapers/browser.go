package scrapers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"profile-enricher/internal/config"
)

// findPhotoJS returns the first non-placeholder profile image on the page, or
// the og:image content when rendering injected none.
const findPhotoJS = `(() => {
  const selectors = [
    "img.pv-top-card-profile-picture__image--show",
    "img.pv-top-card-profile-picture__image",
    "img.profile-photo-edit__preview",
    "img.presence-entity__image",
    "img[src*='media.licdn.com'][src*='profile-displayphoto']",
    "img[src*='media.licdn.com'][src*='profile']",
  ];
  const usable = (src) => src && src.includes("licdn.com") && !src.includes("ghost") && !src.startsWith("data:");
  for (const sel of selectors) {
    for (const img of document.querySelectorAll(sel)) {
      const src = img.getAttribute("src") || "";
      if (usable(src)) return src;
    }
  }
  const og = document.querySelector("meta[property='og:image']");
  return og && usable(og.content) ? og.content : "";
})()`

// Browser renders profile pages in headless Chrome. The browser process is
// started on first use and shared by all lookups until Close.
type Browser struct {
	wait      time.Duration
	timeout   time.Duration
	userAgent string

	once        sync.Once
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewBrowser prepares a Browser from cfg. No process is started yet.
func NewBrowser(cfg config.BrowserConfig, timeout time.Duration) *Browser {
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	wait := time.Duration(cfg.WaitMS) * time.Millisecond
	return &Browser{wait: wait, timeout: timeout + wait, userAgent: ua}
}

func (b *Browser) start() {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(b.userAgent),
	)
	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	logrus.Info("headless browser allocator started")
}

// FindPhoto opens profileURL in a fresh tab and returns the photo URL found
// after the page had time to render.
func (b *Browser) FindPhoto(ctx context.Context, profileURL string) (string, error) {
	b.once.Do(b.start)

	tabCtx, cancel := chromedp.NewContext(b.allocCtx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()
	// The tab descends from the allocator, so follow the caller's ctx by hand.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var src string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(profileURL),
		chromedp.Sleep(b.wait),
		chromedp.Evaluate(findPhotoJS, &src),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("browser lookup of %s failed: %w", profileURL, err)
	}
	return src, nil
}

// Close stops the browser process if it was started.
func (b *Browser) Close() {
	if b.allocCancel != nil {
		b.allocCancel()
	}
}
