// Package storage uploads attachment bytes to the upstream file store.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/harborsupport/console/internal/model/chat"
)

// HTTPUploader posts file bytes as multipart form data and returns the
// hosted descriptor the store replies with.
type HTTPUploader struct {
	endpoint string
	token    string
	http     *http.Client
}

// NewHTTPUploader creates an uploader for the given endpoint.
func NewHTTPUploader(endpoint, token string) *HTTPUploader {
	return &HTTPUploader{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// Upload sends one file and returns its hosted attachment descriptor.
func (u *HTTPUploader) Upload(ctx context.Context, name, mimeType string, data []byte) (chat.Attachment, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return chat.Attachment{}, fmt.Errorf("write file part: %w", err)
	}
	if mimeType != "" {
		if err := writer.WriteField("mimeType", mimeType); err != nil {
			return chat.Attachment{}, fmt.Errorf("write mime field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return chat.Attachment{}, fmt.Errorf("finish multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &buf)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return chat.Attachment{}, fmt.Errorf("upload %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return chat.Attachment{}, fmt.Errorf("upload %q: store returned %d: %s", name, resp.StatusCode, payload)
	}

	var out struct {
		URL       string `json:"url"`
		Name      string `json:"name"`
		SizeBytes int64  `json:"sizeBytes"`
		MimeType  string `json:"mimeType"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return chat.Attachment{}, fmt.Errorf("decode upload response: %w", err)
	}
	if out.URL == "" {
		return chat.Attachment{}, fmt.Errorf("upload %q: store returned no url", name)
	}

	att := chat.Attachment{
		URL:       out.URL,
		Name:      out.Name,
		SizeBytes: out.SizeBytes,
		MimeType:  out.MimeType,
	}
	if att.Name == "" {
		att.Name = name
	}
	if att.SizeBytes == 0 {
		att.SizeBytes = int64(len(data))
	}
	if att.MimeType == "" {
		att.MimeType = mimeType
	}
	return att, nil
}
