package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) (string, error) {
	if s.failPut {
		return "", errors.New("bucket unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	return "https://cdn.example.com/" + key, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func newCogViewForTest(srv *httptest.Server, store *fakeStore) *CogView {
	c := NewCogView("zhipu-key", "", store, srv.Client())
	c.endpoint = srv.URL + "/api/paas/v4/images/generations"
	return c
}

func TestCogViewRehostsImage(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/paas/v4/images/generations":
			var body cogViewRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Model != "cogview-3-flash" || body.Size != "1024x1024" {
				t.Errorf("unexpected request body: %+v", body)
			}
			if r.Header.Get("Authorization") != "Bearer zhipu-key" {
				t.Errorf("missing bearer key")
			}
			_, _ = w.Write([]byte(`{"data":[{"url":"` + srv.URL + `/img.png"}]}`))
		case "/img.png":
			_, _ = w.Write([]byte("PNGDATA"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := newFakeStore()
	got, err := NewWithProviders(newCogViewForTest(srv, store), Placeholder{}).Generate(context.Background(), Request{Prompt: "poster"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(got, "https://cdn.example.com/generated/") || !strings.HasSuffix(got, ".png") {
		t.Fatalf("unexpected url %q", got)
	}
	if len(store.objects) != 1 {
		t.Fatalf("expected one stored object, got %d", len(store.objects))
	}
}

func TestCogViewFallsBackToProviderURLWhenUploadFails(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/img.png" {
			_, _ = w.Write([]byte("PNGDATA"))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"url":"` + srv.URL + `/img.png"}]}`))
	}))
	defer srv.Close()

	store := newFakeStore()
	store.failPut = true
	got, err := newCogViewForTest(srv, store).Generate(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != srv.URL+"/img.png" {
		t.Fatalf("expected provider url, got %q", got)
	}
}

func TestCogViewFailureDegradesToPlaceholder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"insufficient balance"}}`))
	}))
	defer srv.Close()

	got, err := NewWithProviders(newCogViewForTest(srv, newFakeStore()), Placeholder{}).Generate(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("placeholder should absorb the failure, got %v", err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Host != "placehold.co" {
		t.Fatalf("unexpected host %q", u.Host)
	}
	if text := u.Query().Get("text"); !strings.Contains(text, "Image Generation Failed") {
		t.Fatalf("placeholder text = %q", text)
	}
}

func TestForgeUploadsDecodedImage(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("JPEGDATA"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images.v1.ImageService/GenerateImage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Connect-Protocol-Version") != "1" {
			t.Errorf("missing connect protocol header")
		}
		var body map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		if string(body["original_images"]) != "[]" {
			t.Errorf("original_images = %s", body["original_images"])
		}
		_, _ = w.Write([]byte(`{"image":{"b64Json":"` + payload + `","mimeType":"image/jpeg"}}`))
	}))
	defer srv.Close()

	store := newFakeStore()
	g := New(Options{ForgeAPIURL: srv.URL + "/", ForgeAPIKey: "forge-key", Store: store, HTTPClient: srv.Client()})
	if names := g.ProviderNames(); len(names) != 1 || names[0] != "forge" {
		t.Fatalf("chain = %v", names)
	}
	got, err := g.Generate(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for key, data := range store.objects {
		if string(data) != "JPEGDATA" || store.types[key] != "image/jpeg" {
			t.Fatalf("stored %q as %q", data, store.types[key])
		}
		if got != "https://cdn.example.com/"+key {
			t.Fatalf("url %q does not match key %q", got, key)
		}
	}
}

func TestForgeFailureIsNotMasked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := New(Options{ForgeAPIURL: srv.URL, ForgeAPIKey: "k", Store: newFakeStore(), HTTPClient: srv.Client()})
	if _, err := g.Generate(context.Background(), Request{Prompt: "p"}); !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestChainResolution(t *testing.T) {
	g := New(Options{CogViewAPIKey: "z", ForgeAPIURL: "http://forge", ForgeAPIKey: "f"})
	names := g.ProviderNames()
	if len(names) != 2 || names[0] != "cogview" || names[1] != "placeholder" {
		t.Fatalf("chain = %v", names)
	}

	if New(Options{ForgeAPIURL: "http://forge"}).Configured() {
		t.Fatalf("forge without key should not be configured")
	}

	_, err := New(Options{}).Generate(context.Background(), Request{Prompt: "p"})
	if !errors.Is(err, ErrNotConfigured) || !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected not-configured generation failure, got %v", err)
	}
}
