package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testSchema = JSONSchema{
	Name:   "marketing_content",
	Strict: true,
	Schema: json.RawMessage(`{"type":"object","properties":{"a":{"type":"string"}},"required":["a"],"additionalProperties":false}`),
}

func TestOpenAICompatStructuredRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"a\":\"x\"}"}}]}`))
	}))
	defer srv.Close()

	g := NewOpenAICompatGenerator(srv.URL+"/v1/", "sk-test", "gpt-4o-mini", srv.Client())
	text, err := g.GenerateStructured(context.Background(), "sys", "user", testSchema)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != `{"a":"x"}` {
		t.Fatalf("text = %q", text)
	}
	format, ok := got["response_format"].(map[string]any)
	if !ok || format["type"] != "json_schema" {
		t.Fatalf("response_format missing: %v", got["response_format"])
	}
	js := format["json_schema"].(map[string]any)
	if js["name"] != "marketing_content" || js["strict"] != true {
		t.Fatalf("unexpected json_schema: %v", js)
	}
	msgs := got["messages"].([]any)
	if len(msgs) != 2 || msgs[0].(map[string]any)["role"] != "system" {
		t.Fatalf("unexpected messages: %v", msgs)
	}
}

func TestOpenAICompatPlainTextOmitsResponseFormat(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
	}))
	defer srv.Close()

	g := NewOpenAICompatGenerator(srv.URL, "", "m", srv.Client())
	if _, err := g.GenerateText(context.Background(), "", "hi"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, ok := raw["response_format"]; ok {
		t.Fatalf("plain text request should not carry response_format")
	}
}

func TestMessageTextShapes(t *testing.T) {
	cases := map[string]string{
		`"plain"`: "plain",
		`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`: "ab",
		`{"odd":true}`: `{"odd":true}`,
		`null`:         "",
	}
	for in, want := range cases {
		if got := messageText(json.RawMessage(in)); got != want {
			t.Fatalf("messageText(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenAICompatErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	g := NewOpenAICompatGenerator(srv.URL, "k", "m", srv.Client())
	_, err := g.GenerateText(context.Background(), "", "hi")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected provider message, got %v", err)
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()
	g = NewOpenAICompatGenerator(empty.URL, "k", "m", empty.Client())
	if _, err := g.GenerateText(context.Background(), "", "hi"); err == nil {
		t.Fatalf("expected error on empty choices")
	}
}

func TestGeminiStructured(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "g-key" {
			t.Errorf("missing key")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"a\":"},{"text":"\"x\"}"}]}}]}`))
	}))
	defer srv.Close()

	gen, err := NewTextGenerator(Config{Provider: "gemini", BaseURL: srv.URL, APIKey: "g-key", Model: "models/gemini-2.0-flash"}, srv.Client())
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	sg, ok := gen.(StructuredGenerator)
	if !ok {
		t.Fatalf("gemini should support structured output")
	}
	text, err := sg.GenerateStructured(context.Background(), "sys", "user", testSchema)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != `{"a":"x"}` {
		t.Fatalf("text = %q", text)
	}
	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "sys" {
		t.Fatalf("system instruction missing")
	}
	if got.GenerationConfig == nil || got.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("generation config missing: %+v", got.GenerationConfig)
	}
}

func TestOllamaStructuredFormat(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{\"a\":\"x\"}"}}`))
	}))
	defer srv.Close()

	g := NewOllamaGenerator(NewOllamaClient(srv.URL, srv.Client()), "qwen2.5")
	if _, err := g.GenerateStructured(context.Background(), "sys", "user", testSchema); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got.Stream {
		t.Fatalf("stream should be false")
	}
	if len(got.Format) == 0 {
		t.Fatalf("format should carry the schema")
	}
}

func TestNewTextGeneratorUnknownProvider(t *testing.T) {
	if _, err := NewTextGenerator(Config{Provider: "bard"}, nil); err == nil {
		t.Fatalf("expected error")
	}
}
