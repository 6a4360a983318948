package imagestore

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, strict bool, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(Options{
		BaseURL: "https://img.example.test",
		Token:   "secret",
		Timeout: time.Second,
		Strict:  strict,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.httpClient = &http.Client{Transport: rt}
	return client
}

func emptyResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		opts Options
	}{
		{"empty base", Options{Token: "secret"}},
		{"bad scheme", Options{BaseURL: "ftp://img.example.test", Token: "secret"}},
		{"no host", Options{BaseURL: "https://", Token: "secret"}},
		{"no token", Options{BaseURL: "https://img.example.test"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewClient(tc.opts); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDeleteImagesExtractsNames(t *testing.T) {
	var deleted []string
	client := newTestClient(t, true, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodDelete {
			t.Fatalf("method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("auth header %q", got)
		}
		deleted = append(deleted, r.URL.Path)
		return emptyResponse(http.StatusNoContent), nil
	})

	err := client.DeleteImages(context.Background(), []string{
		"https://img.example.test/api/images/a.jpg",
		"https://img.example.test/images/b.jpg",
		"images/c.jpg",
		"/api/images/a.jpg", // duplicate of the first
		"https://other.example.test/api/images/foreign.jpg",
		"https://img.example.test/api/images/../etc/passwd",
		"",
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"/api/images/a.jpg", "/api/images/b.jpg", "/api/images/c.jpg"}
	if len(deleted) != len(want) {
		t.Fatalf("deleted %v want %v", deleted, want)
	}
	for i := range want {
		if deleted[i] != want[i] {
			t.Fatalf("deleted %v want %v", deleted, want)
		}
	}
}

func TestDeleteImagesUnescapesName(t *testing.T) {
	var path string
	client := newTestClient(t, true, func(r *http.Request) (*http.Response, error) {
		path = r.URL.EscapedPath()
		return emptyResponse(http.StatusNoContent), nil
	})

	err := client.DeleteImages(context.Background(), []string{
		"https://img.example.test/api/images/%D1%84%D0%BE%D1%82%D0%BE.jpg",
	})
	if err != nil {
		t.Fatal(err)
	}
	if path != "/api/images/%D1%84%D0%BE%D1%82%D0%BE.jpg" {
		t.Fatalf("path %q", path)
	}
}

func TestDeleteImagesTreats404AsSuccess(t *testing.T) {
	client := newTestClient(t, true, func(r *http.Request) (*http.Response, error) {
		return emptyResponse(http.StatusNotFound), nil
	})

	if err := client.DeleteImages(context.Background(), []string{"/images/gone.jpg"}); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteImagesStrictFailsOnServerError(t *testing.T) {
	client := newTestClient(t, true, func(r *http.Request) (*http.Response, error) {
		return emptyResponse(http.StatusInternalServerError), nil
	})

	if err := client.DeleteImages(context.Background(), []string{"/images/a.jpg"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDeleteImagesLenientContinuesOnError(t *testing.T) {
	var calls int
	client := newTestClient(t, false, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return emptyResponse(http.StatusInternalServerError), nil
		}
		return emptyResponse(http.StatusNoContent), nil
	})

	err := client.DeleteImages(context.Background(), []string{"/images/a.jpg", "/images/b.jpg"})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("calls=%d", calls)
	}
}
