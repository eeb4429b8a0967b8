// Package transcription provides rag.TranscriptionEngine adapters.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// Whisper transcribes audio by posting it to a whisper.cpp server's REST
// /inference endpoint. The worker hands it the raw staged bytes unchanged;
// Whisper uploads them as-is and relies on the server to decode whatever
// container it was given, per rag.TranscriptionEngine's contract that the
// engine owns any decoding it requires.
type Whisper struct {
	serverURL string
	language  string
	model     string
	client    *http.Client
}

// NewWhisper constructs the adapter bound to a whisper.cpp server.
func NewWhisper(serverURL, language, model string) *Whisper {
	if language == "" {
		language = "en"
	}
	return &Whisper{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  language,
		model:     model,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Transcribe implements rag.TranscriptionEngine. data is the raw audio
// bytes fetched from staging, uploaded unmodified; the whisper.cpp server
// performs its own container/codec decoding.
func (w *Whisper) Transcribe(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("transcription: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("transcription: write audio payload: %w", err)
	}
	if w.language != "" {
		if err := mw.WriteField("language", w.language); err != nil {
			return "", fmt.Errorf("transcription: write language field: %w", err)
		}
	}
	if w.model != "" {
		if err := mw.WriteField("model", w.model); err != nil {
			return "", fmt.Errorf("transcription: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("transcription: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("transcription: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("transcription: whisper server returned %d: %s", resp.StatusCode, payload)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transcription: read response: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("transcription: decode response: %w", err)
	}
	return result.Text, nil
}

var _ rag.TranscriptionEngine = (*Whisper)(nil)
