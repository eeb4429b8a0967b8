package fileloader

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

const (
	azureAPIVersion    = "2024-11-30"
	azurePollTimeout   = 300 * time.Second
	azureInitialBackoff = 2 * time.Second
	azureMaxBackoff     = 60 * time.Second
)

// AzureDocIntel extracts PDF text via Azure Document Intelligence's
// prebuilt-layout model, submitting the document and polling the
// long-running operation to completion.
type AzureDocIntel struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewAzureDocIntel constructs the adapter.
func NewAzureDocIntel(endpoint, apiKey string) *AzureDocIntel {
	return &AzureDocIntel{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// ExtractText implements rag.FileLoader for PDF documents only.
func (a *AzureDocIntel) ExtractText(ctx context.Context, data []byte, doc rag.Document) (string, error) {
	if doc.ContentType != rag.ContentTypePdf {
		return "", fmt.Errorf("fileloader: azure doc intel only supports pdf, got %s", doc.ContentType)
	}

	operationURL, err := a.submit(ctx, data)
	if err != nil {
		return "", err
	}
	content, err := a.pollUntilComplete(ctx, operationURL)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("fileloader: no text extracted from %s", doc.Filename)
	}
	return content, nil
}

func (a *AzureDocIntel) submit(ctx context.Context, data []byte) (string, error) {
	body, err := json.Marshal(map[string]string{"base64Source": base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return "", fmt.Errorf("azure doc intel: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/documentintelligence/documentModels/prebuilt-layout:analyze?api-version=%s&outputContentFormat=markdown", a.endpoint, azureAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("azure doc intel: build submit request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("azure doc intel: submit failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("azure doc intel: submit returned %d: %s", resp.StatusCode, payload)
	}

	operationURL := resp.Header.Get("Operation-Location")
	if operationURL == "" {
		return "", fmt.Errorf("azure doc intel: response missing Operation-Location header")
	}
	return operationURL, nil
}

type azureAnalyzeResponse struct {
	Status        string `json:"status"`
	AnalyzeResult *struct {
		Content string `json:"content"`
	} `json:"analyzeResult"`
}

func (a *AzureDocIntel) pollUntilComplete(ctx context.Context, operationURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, azurePollTimeout)
	defer cancel()

	backoff := azureInitialBackoff
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, operationURL, nil)
		if err != nil {
			return "", fmt.Errorf("azure doc intel: build poll request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", a.apiKey)

		resp, err := a.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("azure doc intel: poll request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := backoff
			if v := resp.Header.Get("Retry-After"); v != "" {
				if secs, err := strconv.Atoi(v); err == nil {
					retryAfter = time.Duration(secs) * time.Second
				}
			}
			resp.Body.Close()
			if err := sleepOrDone(ctx, retryAfter); err != nil {
				return "", err
			}
			continue
		}

		if resp.StatusCode >= 300 {
			payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			resp.Body.Close()
			return "", fmt.Errorf("azure doc intel: poll returned %d: %s", resp.StatusCode, payload)
		}

		var result azureAnalyzeResponse
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("azure doc intel: decode poll response: %w", err)
		}

		switch result.Status {
		case "succeeded":
			if result.AnalyzeResult == nil {
				return "", nil
			}
			return result.AnalyzeResult.Content, nil
		case "failed":
			return "", fmt.Errorf("azure doc intel: analysis failed")
		default:
			if err := sleepOrDone(ctx, backoff); err != nil {
				return "", err
			}
			backoff *= 2
			if backoff > azureMaxBackoff {
				backoff = azureMaxBackoff
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ rag.FileLoader = (*AzureDocIntel)(nil)
