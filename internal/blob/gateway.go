package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/awsl-dev/vidstream/internal/apperr"
)

// Gateway stores chunks through an HTTP blob gateway: a multipart upload
// endpoint that answers with a backend-assigned file id, and a download
// endpoint keyed by that id.
type Gateway struct {
	http     *retryablehttp.Client
	baseURL  string
	apiToken string
	chatID   string
}

// NewGateway builds a gateway client. baseURL has no trailing slash.
func NewGateway(baseURL, apiToken, chatID string, logger *zap.Logger) *Gateway {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	if logger != nil {
		client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
			if attempt > 0 {
				logger.Warn("retrying gateway request",
					zap.String("url", req.URL.Path),
					zap.Int("attempt", attempt))
			}
		}
	}
	return &Gateway{
		http:     client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiToken: apiToken,
		chatID:   chatID,
	}
}

type gatewayUploadResponse struct {
	Success bool `json:"success"`
	Files   []struct {
		FileID string `json:"file_id"`
	} `json:"files"`
}

// Put uploads one chunk and returns the gateway-assigned file id.
func (g *Gateway) Put(ctx context.Context, name string, data []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "blob.put",
		trace.WithAttributes(
			attribute.String("chunk_name", name),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	mw.WriteField("media_type", "document")
	mw.WriteField("chat_id", g.chatID)
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/upload", &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Api-Token", g.apiToken)

	resp, err := g.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", &apperr.UploadError{Name: name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("gateway returned %s", resp.Status)
		span.RecordError(err)
		return "", &apperr.UploadError{Name: name, Err: err}
	}

	var out gatewayUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		span.RecordError(err)
		return "", &apperr.UploadError{Name: name, Err: fmt.Errorf("decode gateway response: %w", err)}
	}
	if !out.Success || len(out.Files) == 0 {
		err := errors.New("gateway reported no stored file")
		span.RecordError(err)
		return "", &apperr.UploadError{Name: name, Err: err}
	}

	span.SetAttributes(attribute.String("file_id", out.Files[0].FileID))
	return out.Files[0].FileID, nil
}

// Get downloads one chunk by its opaque file id.
func (g *Gateway) Get(ctx context.Context, fileID string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "blob.get",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/file/"+url.PathEscape(fileID), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, &apperr.RetrievalError{FileID: fileID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &apperr.RetrievalError{FileID: fileID, NotFound: true, Err: errors.New("unknown file id")}
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("gateway returned %s", resp.Status)
		span.RecordError(err)
		return nil, &apperr.RetrievalError{FileID: fileID, Err: err}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, &apperr.RetrievalError{FileID: fileID, Err: err}
	}
	span.SetAttributes(attribute.Int("size_bytes", len(data)))
	return data, nil
}
