package fileloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// PythonPDF extracts text from PDF bytes by calling out to a sidecar HTTP
// parsing service, the same shape as a local Python microservice fronting
// a PDF text-extraction library.
type PythonPDF struct {
	serviceURL string
	client     *http.Client
}

// NewPythonPDF constructs the adapter bound to serviceURL.
func NewPythonPDF(serviceURL string) *PythonPDF {
	if serviceURL == "" {
		serviceURL = "http://localhost:8081"
	}
	return &PythonPDF{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

type pdfParseResponse struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
	Error string `json:"error,omitempty"`
}

// ExtractText implements rag.FileLoader.
func (p *PythonPDF) ExtractText(ctx context.Context, data []byte, doc rag.Document) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serviceURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("fileloader: build pdf parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fileloader: call pdf parse service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fileloader: read pdf parse response: %w", err)
	}

	var result pdfParseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("fileloader: decode pdf parse response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("fileloader: pdf parse error: %s", result.Error)
	}
	if strings.TrimSpace(result.Text) == "" {
		return "", fmt.Errorf("fileloader: no text extracted from %s", doc.Filename)
	}
	return result.Text, nil
}

var _ rag.FileLoader = (*PythonPDF)(nil)
