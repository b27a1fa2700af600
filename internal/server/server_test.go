package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"marketgen/internal/app"
	"marketgen/internal/ratelimit"
	"marketgen/pkg/domain"
	"marketgen/pkg/imagegen"
	"marketgen/pkg/session"
	"marketgen/pkg/store"
)

const contentReply = `{
  "prospectus": {"title": "招商手册", "sections": [{"subtitle": "概览", "text": "园区介绍"}]},
  "videoScript": {"title": "短片", "totalDuration": 30, "scenes": [
    {"sceneNumber": 1, "duration": 10, "visuals": "航拍", "voiceover": "欢迎", "bgmSuggestion": "激昂"}
  ]},
  "posterElements": {"mainHeadline": "主标题", "subHeadline": "副标题", "bodyText": "正文", "callToAction": "立即咨询"}
}`

type stubText struct {
	reply string
	err   error
	calls int
}

func (s *stubText) GenerateText(context.Context, string, string) (string, error) {
	s.calls++
	return s.reply, s.err
}

type stubImages struct{ url string }

func (s stubImages) Generate(context.Context, imagegen.Request) (string, error) {
	return s.url, nil
}

type stubObjects struct{ puts int }

func (s *stubObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	s.puts++
	return "https://cdn.example.com/" + key, nil
}

func (s *stubObjects) Delete(context.Context, string) error { return nil }

type harness struct {
	srv      *httptest.Server
	store    *store.MemoryStore
	text     *stubText
	objects  *stubObjects
	sessions *session.Manager
}

func newHarness(t *testing.T, limiter *ratelimit.FixedWindowLimiter) *harness {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	h := &harness{
		store:    store.NewMemoryStore(),
		text:     &stubText{reply: contentReply},
		objects:  &stubObjects{},
		sessions: session.NewManager(key, session.Options{Revoker: session.NewMemoryRevoker()}),
	}
	a, err := app.New(app.Config{
		Store:          h.store,
		Objects:        h.objects,
		Text:           h.text,
		Images:         stubImages{url: "https://cdn.example.com/generated/poster.png"},
		MaxUploadBytes: 1024,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{App: a, Sessions: h.sessions, GenerateLimiter: limiter})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	h.srv = httptest.NewServer(s.Router())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) token(t *testing.T, openID string) string {
	t.Helper()
	token, err := h.sessions.Issue(session.Identity{OpenID: openID, Name: openID})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			data, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			raw = string(data)
		}
		reader = strings.NewReader(raw)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d, body %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, data)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, code string) errorBody {
	t.Helper()
	expectStatus(t, resp, status)
	var body errorBody
	decodeBody(t, resp, &body)
	if body.Code != code {
		t.Fatalf("error code = %q, want %q (%s)", body.Code, code, body.Error)
	}
	if body.RequestID == "" || body.RequestID != resp.Header.Get("X-Request-Id") {
		t.Fatalf("error body request id %q does not match header %q", body.RequestID, resp.Header.Get("X-Request-Id"))
	}
	return body
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(t, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing security headers")
	}
}

func TestMeWithoutSessionReturnsNull(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(t, http.MethodGet, "/api/auth/me", "", nil)
	expectStatus(t, resp, http.StatusOK)
	data, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(data)) != "null" {
		t.Fatalf("expected null user, got %s", data)
	}
}

func TestMeResolvesBearerAndCookie(t *testing.T) {
	h := newHarness(t, nil)
	token := h.token(t, "open-alice")

	resp := h.do(t, http.MethodGet, "/api/auth/me", token, nil)
	expectStatus(t, resp, http.StatusOK)
	var user domain.User
	decodeBody(t, resp, &user)
	if user.ID == 0 || user.OpenID != "open-alice" || user.Role != domain.RoleUser {
		t.Fatalf("unexpected user: %+v", user)
	}

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "app_session_id", Value: token})
	cookieResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("cookie request: %v", err)
	}
	defer cookieResp.Body.Close()
	var viaCookie domain.User
	decodeBody(t, cookieResp, &viaCookie)
	if viaCookie.ID != user.ID {
		t.Fatalf("cookie resolved user %d, want %d", viaCookie.ID, user.ID)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	h := newHarness(t, nil)
	token := h.token(t, "open-alice")

	resp := h.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	expectStatus(t, resp, http.StatusOK)
	cleared := false
	for _, c := range resp.Cookies() {
		if c.Name == "app_session_id" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected session cookie to be cleared")
	}

	list := h.do(t, http.MethodGet, "/api/history", token, nil)
	expectError(t, list, http.StatusUnauthorized, "unauthorized")
}

func TestGenerateContentRequiresSession(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.do(t, http.MethodPost, "/api/generate/content", "", contentRequest{Prompt: "写文案", Style: "专业稳重"})
	body := expectError(t, resp, http.StatusUnauthorized, "unauthorized")
	if body.Error != "please login" {
		t.Fatalf("error message = %q", body.Error)
	}
	if h.text.calls != 0 {
		t.Fatalf("provider should not be called")
	}
}

func TestGenerateContentFlow(t *testing.T) {
	h := newHarness(t, nil)
	token := h.token(t, "open-alice")

	resp := h.do(t, http.MethodPost, "/api/generate/content", token, contentRequest{Prompt: "为XX产业园写招商文案", Style: "科技感"})
	expectStatus(t, resp, http.StatusOK)
	var content app.ContentResult
	decodeBody(t, resp, &content)
	if content.ID == 0 || content.PosterElements.MainHeadline != "主标题" {
		t.Fatalf("unexpected content: %+v", content)
	}

	poster := h.do(t, http.MethodPost, "/api/generate/poster", token, posterRequest{
		HistoryID: content.ID, MainHeadline: "主标题", SubHeadline: "副标题", BodyText: "正文", Style: "科技感",
	})
	expectStatus(t, poster, http.StatusOK)
	var posterResult app.PosterResult
	decodeBody(t, poster, &posterResult)
	if posterResult.PosterURL != "https://cdn.example.com/generated/poster.png" {
		t.Fatalf("poster url = %q", posterResult.PosterURL)
	}

	h.text.reply = "```json\n{\"platforms\":{\"抖音\":{\"title\":\"t\",\"content\":\"c\",\"hashtags\":[\"#a\"]}}}\n```"
	platform := h.do(t, http.MethodPost, "/api/generate/platform-content", token, platformRequest{
		HistoryID: content.ID, OriginalContent: "原文", Platforms: []string{"抖音"}, Style: "科技感",
	})
	expectStatus(t, platform, http.StatusOK)
	var adapted domain.PlatformContents
	decodeBody(t, platform, &adapted)
	if _, ok := adapted.Platforms["抖音"]; !ok || len(adapted.Platforms) != 1 {
		t.Fatalf("unexpected platforms: %+v", adapted.Platforms)
	}

	get := h.do(t, http.MethodGet, "/api/history/"+itoa(content.ID), token, nil)
	expectStatus(t, get, http.StatusOK)
	var row domain.GenerationHistory
	decodeBody(t, get, &row)
	if row.Style != domain.StyleTech || row.PosterURL != posterResult.PosterURL || row.PlatformContents == nil {
		t.Fatalf("history row not updated: %+v", row)
	}
}

func TestGenerateContentRejectsUnknownStyle(t *testing.T) {
	h := newHarness(t, nil)
	token := h.token(t, "open-alice")
	resp := h.do(t, http.MethodPost, "/api/generate/content", token, contentRequest{Prompt: "写文案", Style: "赛博朋克"})
	expectError(t, resp, http.StatusBadRequest, "validation_error")

	resp = h.do(t, http.MethodPost, "/api/generate/content", token, "{not json")
	expectError(t, resp, http.StatusBadRequest, "validation_error")
	if h.text.calls != 0 {
		t.Fatalf("provider should not be called for invalid input")
	}
}

func TestGenerationFailuresMapToBadGateway(t *testing.T) {
	h := newHarness(t, nil)
	token := h.token(t, "open-alice")

	h.text.reply = "not json at all"
	resp := h.do(t, http.MethodPost, "/api/generate/content", token, contentRequest{Prompt: "写文案", Style: "专业稳重"})
	expectError(t, resp, http.StatusBadGateway, "parse_failed")

	h.text.err = errors.New("upstream 500")
	resp = h.do(t, http.MethodPost, "/api/generate/content", token, contentRequest{Prompt: "写文案", Style: "专业稳重"})
	expectError(t, resp, http.StatusBadGateway, "generation_failed")

	owner, _, _ := h.store.GetUserByOpenID("open-alice")
	items, err := h.store.ListHistoryByUser(owner.ID, 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("failed generations must not persist rows, got %d", len(items))
	}
}

func TestHistoryOwnershipIsNotFound(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.token(t, "open-alice")
	bob := h.token(t, "open-bob")

	resp := h.do(t, http.MethodPost, "/api/generate/content", alice, contentRequest{Prompt: "写文案", Style: "专业稳重"})
	expectStatus(t, resp, http.StatusOK)
	var content app.ContentResult
	decodeBody(t, resp, &content)
	path := "/api/history/" + itoa(content.ID)

	foreign := expectError(t, h.do(t, http.MethodGet, path, bob, nil), http.StatusNotFound, "not_found")
	missing := expectError(t, h.do(t, http.MethodGet, "/api/history/999999", bob, nil), http.StatusNotFound, "not_found")
	if foreign.Error != "History not found" || foreign.Error != missing.Error {
		t.Fatalf("foreign and missing rows must look identical: %q vs %q", foreign.Error, missing.Error)
	}
	expectError(t, h.do(t, http.MethodDelete, path, bob, nil), http.StatusNotFound, "not_found")
	expectError(t, h.do(t, http.MethodPost, "/api/generate/poster", bob, posterRequest{
		HistoryID: content.ID, MainHeadline: "m", SubHeadline: "s", BodyText: "b", Style: "专业稳重",
	}), http.StatusNotFound, "not_found")

	expectStatus(t, h.do(t, http.MethodDelete, path, alice, nil), http.StatusOK)
	expectError(t, h.do(t, http.MethodGet, path, alice, nil), http.StatusNotFound, "not_found")
}

func TestHistoryListLimit(t *testing.T) {
	h := newHarness(t, nil)
	token := h.token(t, "open-alice")
	for i := 0; i < 3; i++ {
		expectStatus(t, h.do(t, http.MethodPost, "/api/generate/content", token, contentRequest{Prompt: "写文案", Style: "专业稳重"}), http.StatusOK)
	}
	resp := h.do(t, http.MethodGet, "/api/history?limit=2", token, nil)
	expectStatus(t, resp, http.StatusOK)
	var items []domain.GenerationHistory
	decodeBody(t, resp, &items)
	if len(items) != 2 || items[0].ID < items[1].ID {
		t.Fatalf("expected two rows newest first, got %+v", items)
	}
	expectError(t, h.do(t, http.MethodGet, "/api/history?limit=abc", token, nil), http.StatusBadRequest, "validation_error")
	expectError(t, h.do(t, http.MethodGet, "/api/history?limit=101", token, nil), http.StatusBadRequest, "validation_error")
}

func TestAssetsCreateUpdateDelete(t *testing.T) {
	h := newHarness(t, nil)
	token := h.token(t, "open-alice")

	resp := h.do(t, http.MethodPost, "/api/assets", token, app.AssetInput{Name: "主色", Type: "color", Value: "#0050FF"})
	expectStatus(t, resp, http.StatusOK)
	var created struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, resp, &created)

	value := "#FF0000"
	expectStatus(t, h.do(t, http.MethodPatch, "/api/assets/"+itoa(created.ID), token, app.AssetPatch{Value: &value}), http.StatusOK)

	list := h.do(t, http.MethodGet, "/api/assets", token, nil)
	expectStatus(t, list, http.StatusOK)
	var assets []domain.BrandAsset
	decodeBody(t, list, &assets)
	if len(assets) != 1 || assets[0].Value != value {
		t.Fatalf("unexpected assets: %+v", assets)
	}

	other := h.token(t, "open-bob")
	expectError(t, h.do(t, http.MethodDelete, "/api/assets/"+itoa(created.ID), other, nil), http.StatusNotFound, "not_found")
	expectStatus(t, h.do(t, http.MethodDelete, "/api/assets/"+itoa(created.ID), token, nil), http.StatusOK)
	expectError(t, h.do(t, http.MethodPost, "/api/assets", token, app.AssetInput{Name: "x", Type: "video"}), http.StatusBadRequest, "validation_error")
}

func TestUploadAssetSizeLimit(t *testing.T) {
	h := newHarness(t, nil)
	token := h.token(t, "open-alice")

	ok := app.UploadInput{
		Name:     "logo",
		Type:     "logo",
		FileData: "data:image/png;base64," + base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 1024)),
		MimeType: "image/png",
	}
	resp := h.do(t, http.MethodPost, "/api/assets/upload", token, ok)
	expectStatus(t, resp, http.StatusOK)
	var result app.UploadResult
	decodeBody(t, resp, &result)
	if result.ID == 0 || !strings.HasSuffix(result.URL, ".png") {
		t.Fatalf("unexpected upload result: %+v", result)
	}

	tooBig := ok
	tooBig.FileData = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 1025))
	expectError(t, h.do(t, http.MethodPost, "/api/assets/upload", token, tooBig), http.StatusBadRequest, "validation_error")

	huge := ok
	huge.FileData = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 200*1024))
	expectError(t, h.do(t, http.MethodPost, "/api/assets/upload", token, huge), http.StatusBadRequest, "validation_error")
	if h.objects.puts != 1 {
		t.Fatalf("rejected uploads must not reach storage, puts = %d", h.objects.puts)
	}
}

func TestGenerateRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	limiter, err := ratelimit.NewFixedWindowLimiter(client, "test:generate", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	h := newHarness(t, limiter)
	alice := h.token(t, "open-alice")
	bob := h.token(t, "open-bob")
	req := contentRequest{Prompt: "写文案", Style: "专业稳重"}

	expectStatus(t, h.do(t, http.MethodPost, "/api/generate/content", alice, req), http.StatusOK)
	limited := h.do(t, http.MethodPost, "/api/generate/content", alice, req)
	expectError(t, limited, http.StatusTooManyRequests, "rate_limited")
	if limited.Header.Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", limited.Header.Get("Retry-After"))
	}
	expectStatus(t, h.do(t, http.MethodPost, "/api/generate/content", bob, req), http.StatusOK)
	expectStatus(t, h.do(t, http.MethodGet, "/api/history", alice, nil), http.StatusOK)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHarness(t, nil)
	token := h.token(t, "open-alice")
	expectError(t, h.do(t, http.MethodGet, "/api/generate/content", token, nil), http.StatusMethodNotAllowed, "method_not_allowed")
	expectError(t, h.do(t, http.MethodPut, "/api/assets/1", token, nil), http.StatusMethodNotAllowed, "method_not_allowed")
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
