package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func TestFormatCookieHeader(t *testing.T) {
	cookies := []*proto.NetworkCookie{
		{Name: "SESSDATA", Value: "abc"},
		{Name: "DedeUserID", Value: "42"},
		{Name: "bili_jct", Value: "xyz"},
	}
	got := FormatCookieHeader(cookies)
	want := "SESSDATA=abc; DedeUserID=42; bili_jct=xyz"
	if got != want {
		t.Errorf("header = %q, want %q", got, want)
	}
	if FormatCookieHeader(nil) != "" {
		t.Error("empty cookie set must render empty header")
	}
}

func TestHasCookie(t *testing.T) {
	cookies := []*proto.NetworkCookie{{Name: "DedeUserID", Value: "42"}}
	if !hasCookie(cookies, "DedeUserID") {
		t.Error("expected marker cookie to be found")
	}
	if hasCookie(cookies, "SESSDATA") {
		t.Error("unexpected match")
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.PollInterval != time.Second {
		t.Errorf("poll interval = %v, want 1s", o.PollInterval)
	}
	if o.Timeout != 5*time.Minute {
		t.Errorf("timeout = %v, want 5m", o.Timeout)
	}
	o = Options{PollInterval: 10 * time.Millisecond, Timeout: time.Second}.withDefaults()
	if o.PollInterval != 10*time.Millisecond || o.Timeout != time.Second {
		t.Errorf("explicit options overridden: %+v", o)
	}
}

const testLoginURL = "https://passport.example/login"

func TestPollForCookieResolvesOnMarker(t *testing.T) {
	read := func() ([]*proto.NetworkCookie, error) {
		return []*proto.NetworkCookie{
			{Name: "DedeUserID", Value: "42"},
			{Name: "SESSDATA", Value: "abc"},
		}, nil
	}
	header, err := pollForCookie(context.Background(), read, make(chan struct{}), testLoginURL, "DedeUserID", 5*time.Millisecond)
	if err != nil {
		t.Fatalf("pollForCookie: %v", err)
	}
	if header != "DedeUserID=42; SESSDATA=abc" {
		t.Errorf("header = %q", header)
	}
}

func TestPollForCookieWindowClosed(t *testing.T) {
	destroyed := make(chan struct{})
	close(destroyed)
	read := func() ([]*proto.NetworkCookie, error) {
		return nil, errors.New("context canceled")
	}
	header, err := pollForCookie(context.Background(), read, destroyed, testLoginURL, "DedeUserID", 5*time.Millisecond)
	if header != "" || err != nil {
		t.Errorf("window close = (%q, %v), want (\"\", nil)", header, err)
	}
}

func TestPollForCookieReadErrorSurfaces(t *testing.T) {
	readErr := errors.New("cdp session broke")
	read := func() ([]*proto.NetworkCookie, error) {
		return nil, readErr
	}
	header, err := pollForCookie(context.Background(), read, make(chan struct{}), testLoginURL, "DedeUserID", 5*time.Millisecond)
	if header != "" {
		t.Errorf("unexpected header %q", header)
	}
	if !errors.Is(err, readErr) {
		t.Errorf("err = %v, want wrapped %v", err, readErr)
	}
}

func TestPollForCookieTimeoutIsNegative(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	read := func() ([]*proto.NetworkCookie, error) {
		t.Error("read must not run after cancellation")
		return nil, nil
	}
	header, err := pollForCookie(ctx, read, make(chan struct{}), testLoginURL, "DedeUserID", time.Hour)
	if header != "" || err != nil {
		t.Errorf("timeout = (%q, %v), want (\"\", nil)", header, err)
	}
}
