package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"marketgen/pkg/storage"
)

// Forge calls a Connect-protocol ImageService and uploads the returned bytes.
type Forge struct {
	endpoint   string
	apiKey     string
	store      storage.ObjectStore
	httpClient *http.Client
}

func NewForge(baseURL, apiKey string, store storage.ObjectStore, client *http.Client) *Forge {
	return &Forge{
		endpoint:   strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/images.v1.ImageService/GenerateImage",
		apiKey:     strings.TrimSpace(apiKey),
		store:      store,
		httpClient: client,
	}
}

func (f *Forge) Name() string { return "forge" }

func (f *Forge) Generate(ctx context.Context, req Request) (string, error) {
	images := req.OriginalImages
	if images == nil {
		images = []ReferenceImage{}
	}
	body, err := json.Marshal(forgeRequest{Prompt: req.Prompt, OriginalImages: images})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Connect-Protocol-Version", "1")
	httpReq.Header.Set("Authorization", "Bearer "+f.apiKey)

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("forge request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("forge request failed (%s): %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	var out forgeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("forge decode: %w", err)
	}
	if out.Image.B64JSON == "" {
		return "", fmt.Errorf("forge returned no image")
	}
	data, err := base64.StdEncoding.DecodeString(out.Image.B64JSON)
	if err != nil {
		return "", fmt.Errorf("forge image decode: %w", err)
	}
	if f.store == nil {
		return "", fmt.Errorf("forge: no object store")
	}
	contentType := out.Image.MimeType
	if contentType == "" {
		contentType = "image/png"
	}
	return f.store.Put(ctx, generatedKey(), bytes.NewReader(data), int64(len(data)), contentType)
}

type forgeRequest struct {
	Prompt         string           `json:"prompt"`
	OriginalImages []ReferenceImage `json:"original_images"`
}

type forgeResponse struct {
	Image struct {
		B64JSON  string `json:"b64Json"`
		MimeType string `json:"mimeType"`
	} `json:"image"`
}
