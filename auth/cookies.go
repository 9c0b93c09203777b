// Package auth obtains a session credential interactively: it opens a real
// browser window at the login URL and polls its cookie jar until the marker
// cookie shows up, the window is closed, or the overall timeout elapses.
// "No credential" (timeout or user close) is a result, not an error.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Options tunes the polling loop. Zero values get the defaults the
// original login flow used: 1 s polls, 5 min overall.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Headless     bool // headful by default; the user has to type a password
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Minute
	}
	return o
}

// AcquireCookies opens the login surface and waits for markerCookie to
// appear among the cookies scoped to loginURL. On success it returns every
// cookie in that scope serialized as an HTTP Cookie header value. The
// marker cookie is cleared first so a stale value cannot satisfy the poll.
//
// Returns ("", nil) when the user closes the window or the timeout
// elapses; both outcomes resolve the caller exactly once and tear the
// window down. A non-nil error means the surface itself failed (launch,
// navigation, cookie polling), which is a real failure, not a declined
// login.
func AcquireCookies(ctx context.Context, loginURL, markerCookie string, opts Options) (string, error) {
	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	l := launcher.New().Headless(opts.Headless)
	controlURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch login browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connect login browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			slog.Debug("login browser close", slog.Any("err", err))
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: loginURL})
	if err != nil {
		return "", fmt.Errorf("open login page: %w", err)
	}

	// Force a fresh credential: a leftover marker cookie from an earlier
	// session must not short-circuit the login.
	if err := (proto.NetworkDeleteCookies{Name: markerCookie, URL: loginURL}).Call(page); err != nil {
		return "", fmt.Errorf("clear marker cookie: %w", err)
	}

	destroyed := watchTargetDestroyed(browser, page)
	read := func() ([]*proto.NetworkCookie, error) {
		return page.Cookies([]string{loginURL})
	}
	return pollForCookie(ctx, read, destroyed, loginURL, markerCookie, opts.PollInterval)
}

// watchTargetDestroyed reports when the login page's target goes away,
// which is how a user closing the window shows up over the protocol.
func watchTargetDestroyed(browser *rod.Browser, page *rod.Page) <-chan struct{} {
	_ = proto.TargetSetDiscoverTargets{Discover: true}.Call(browser)
	destroyed := make(chan struct{})
	wait := browser.EachEvent(func(e *proto.TargetTargetDestroyed) bool {
		return e.TargetID == page.TargetID
	})
	go func() {
		wait()
		close(destroyed)
	}()
	return destroyed
}

// destroyedGrace gives a pending target-destroyed notification time to
// land before a cookie-read failure is treated as a real error. Closing
// the window kills the in-flight Network.getCookies call, so the error
// often arrives first.
const destroyedGrace = 250 * time.Millisecond

// pollForCookie drives the polling loop. Timeout and window-close resolve
// as ("", nil); any other cookie-read failure is returned as an error.
func pollForCookie(ctx context.Context, read func() ([]*proto.NetworkCookie, error), destroyed <-chan struct{}, loginURL, markerCookie string, interval time.Duration) (string, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Timeout (or caller cancellation): definite negative.
			slog.Info("credential acquisition timed out", slog.String("url", loginURL))
			return "", nil
		case <-destroyed:
			slog.Info("login window closed before credential appeared", slog.String("url", loginURL))
			return "", nil
		case <-ticker.C:
			cookies, err := read()
			if err != nil {
				select {
				case <-destroyed:
					slog.Info("login window closed before credential appeared", slog.String("url", loginURL))
					return "", nil
				case <-ctx.Done():
					slog.Info("credential acquisition timed out", slog.String("url", loginURL))
					return "", nil
				case <-time.After(destroyedGrace):
				}
				return "", fmt.Errorf("read login cookies: %w", err)
			}
			if hasCookie(cookies, markerCookie) {
				return FormatCookieHeader(cookies), nil
			}
		}
	}
}

func hasCookie(cookies []*proto.NetworkCookie, name string) bool {
	for _, c := range cookies {
		if c.Name == name {
			return true
		}
	}
	return false
}

// FormatCookieHeader renders cookies as a Cookie header value,
// `name=value; name=value`, the shape the danmu dialer expects.
func FormatCookieHeader(cookies []*proto.NetworkCookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
