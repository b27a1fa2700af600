package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"marketgen/pkg/storage"
)

const (
	cogViewEndpoint     = "https://open.bigmodel.cn/api/paas/v4/images/generations"
	defaultCogViewModel = "cogview-3-flash"
	maxDownloadBytes    = 20 << 20
)

// CogView calls the Zhipu image API and re-hosts the result in object storage.
type CogView struct {
	endpoint   string
	apiKey     string
	model      string
	store      storage.ObjectStore
	httpClient *http.Client
}

func NewCogView(apiKey, model string, store storage.ObjectStore, client *http.Client) *CogView {
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultCogViewModel
	}
	return &CogView{
		endpoint:   cogViewEndpoint,
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		store:      store,
		httpClient: client,
	}
}

func (c *CogView) Name() string { return "cogview" }

func (c *CogView) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(cogViewRequest{Model: c.model, Prompt: req.Prompt, Size: "1024x1024"})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("cogview request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("cogview request failed (%s): %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	var out cogViewResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("cogview decode: %w", err)
	}
	if len(out.Data) == 0 || out.Data[0].URL == "" {
		return "", fmt.Errorf("no image url returned from cogview")
	}
	remote := out.Data[0].URL

	// Provider URLs expire after a few weeks; keep the remote URL if re-hosting fails.
	hosted, err := c.rehost(ctx, remote)
	if err != nil {
		slog.Warn("cogview rehost failed, using provider url", "err", err)
		return remote, nil
	}
	return hosted, nil
}

func (c *CogView) rehost(ctx context.Context, remote string) (string, error) {
	if c.store == nil {
		return "", fmt.Errorf("no object store")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remote, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	return c.store.Put(ctx, generatedKey(), bytes.NewReader(data), int64(len(data)), "image/png")
}

func generatedKey() string {
	return "generated/" + uuid.NewString() + ".png"
}

type cogViewRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

type cogViewResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}
