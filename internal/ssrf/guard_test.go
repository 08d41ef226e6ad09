package ssrf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestValidateBlockedAddresses(t *testing.T) {
	g := NewGuard(zerolog.Nop())
	ctx := context.Background()

	blocked := []string{
		"http://127.0.0.1/stream",
		"http://127.8.8.8:8080/stream",
		"http://10.0.0.5/stream",
		"http://172.16.3.4/stream",
		"http://192.168.1.1/stream",
		"http://169.254.169.254/latest/meta-data/",
		"http://0.0.0.0/stream",
		"http://224.0.0.1/stream",
		"http://[::1]/stream",
		"http://[fe80::1]/stream",
	}
	for _, u := range blocked {
		err := g.Validate(ctx, u)
		if !errors.Is(err, ErrBlockedAddress) {
			t.Errorf("Validate(%q) = %v, want ErrBlockedAddress", u, err)
		}
	}

	for _, u := range []string{"http://1.1.1.1/stream", "https://8.8.8.8/x.m3u8"} {
		if err := g.Validate(ctx, u); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", u, err)
		}
	}
}

func TestValidateScheme(t *testing.T) {
	g := NewGuard(zerolog.Nop())
	ctx := context.Background()

	for _, u := range []string{"ftp://1.1.1.1/file", "file:///etc/passwd", "gopher://1.1.1.1/"} {
		if err := g.Validate(ctx, u); !errors.Is(err, ErrInvalidScheme) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidScheme", u, err)
		}
	}
	if err := g.Validate(ctx, "http://"); err == nil {
		t.Error("Validate accepted a URL without a host")
	}
}

func TestValidateAllowPrivate(t *testing.T) {
	g := NewGuard(zerolog.Nop())
	g.AllowPrivate = true

	if err := g.Validate(context.Background(), "http://127.0.0.1:8080/stream"); err != nil {
		t.Errorf("Validate with AllowPrivate = %v, want nil", err)
	}
	// Scheme checks still apply.
	if err := g.Validate(context.Background(), "ftp://127.0.0.1/"); !errors.Is(err, ErrInvalidScheme) {
		t.Errorf("got %v, want ErrInvalidScheme", err)
	}
}

func TestFetchFollowsValidatedRedirects(t *testing.T) {
	g := NewGuard(zerolog.Nop())
	g.AllowPrivate = true

	var final *httptest.Server
	final = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer final.Close()

	hops := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL+"/file.ts", http.StatusFound)
	}))
	defer hops.Close()

	resp, finalURL, err := g.Fetch(context.Background(), nil, hops.URL, FetchOptions{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "payload" {
		t.Errorf("body = %q", body)
	}
	if finalURL.String() != final.URL+"/file.ts" {
		t.Errorf("final URL = %s", finalURL)
	}
}

func TestFetchRejectsRedirectToBlockedAddress(t *testing.T) {
	g := NewGuard(zerolog.Nop())

	// The guard never validates hops it cannot reach, so the entry
	// point must be public; a request-level stub keeps this offline.
	client := &http.Client{Transport: redirectTransport{target: "http://169.254.169.254/secrets"}}

	_, _, err := g.Fetch(context.Background(), client, "http://1.1.1.1/start", FetchOptions{})
	if !errors.Is(err, ErrBlockedAddress) {
		t.Errorf("Fetch = %v, want ErrBlockedAddress", err)
	}
}

type redirectTransport struct {
	target string
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp := &http.Response{
		StatusCode: http.StatusFound,
		Header:     http.Header{"Location": []string{rt.target}},
		Body:       http.NoBody,
		Request:    req,
	}
	return resp, nil
}

func TestFetchBreaksRedirectLoops(t *testing.T) {
	g := NewGuard(zerolog.Nop())
	client := &http.Client{Transport: loopTransport{}}

	_, _, err := g.Fetch(context.Background(), client, "http://1.1.1.1/loop", FetchOptions{})
	if !errors.Is(err, ErrRedirectLoop) && !errors.Is(err, ErrTooManyRedirect) {
		t.Errorf("Fetch = %v, want a redirect loop error", err)
	}
}

type loopTransport struct{}

func (loopTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusFound,
		Header:     http.Header{"Location": []string{req.URL.String()}},
		Body:       http.NoBody,
		Request:    req,
	}, nil
}

func TestFetchSendsHeaders(t *testing.T) {
	g := NewGuard(zerolog.Nop())
	g.AllowPrivate = true

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	resp, _, err := g.Fetch(context.Background(), nil, srv.URL, FetchOptions{
		Headers: http.Header{"User-Agent": []string{"TestPlayer/1.0"}},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	resp.Body.Close()
	if got != "TestPlayer/1.0" {
		t.Errorf("upstream saw User-Agent %q", got)
	}
}
