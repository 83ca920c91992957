package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"image-converter/internal/capture"
	"image-converter/internal/util"
)

const (
	convertPath  = "api/convert"
	downloadPath = "api/download"

	// bytes of an error body kept for logs and StatusError
	errorBodyLimit = 512
	maxResultBytes = 64 << 20
)

// ErrResponseTooLarge means the service sent more than the client accepts.
var ErrResponseTooLarge = errors.New("response too large")

// client talks to the conversion service. Every call is a single attempt.
type client struct {
	baseURL    string
	httpClient *http.Client
	maxBody    int64
}

// NewClient creates a Converter against baseURL. A zero timeout disables the
// client deadline.
func NewClient(baseURL string, timeout time.Duration) Converter {
	return newClient(baseURL, &http.Client{Timeout: timeout})
}

func newClient(baseURL string, httpClient *http.Client) *client {
	// Ensure baseURL ends with /
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &client{baseURL: baseURL, httpClient: httpClient, maxBody: maxResultBytes}
}

type convertResponse struct {
	Result *string `json:"result"`
}

type downloadRequest struct {
	Data   string `json:"data"`
	Format Format `json:"format"`
}

func (c *client) Convert(ctx context.Context, img capture.Image, kind Kind) (string, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return "", err
	}
	if len(img.Data) == 0 {
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, capture.ErrEmptyImage)
	}

	body, contentType, err := multipartBody(img, kind)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	reqID := util.RandomString(8)
	log.Printf("convert[%s]: uploading %s (%d KB) as %s", reqID, util.Truncate(img.Name, 48), img.Size()/1024, kind)

	payload, err := c.post(ctx, convertPath, contentType, body)
	if err != nil {
		log.Printf("convert[%s]: %v", reqID, err)
		return "", fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	var resp convertResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		log.Printf("convert[%s]: malformed response: %s", reqID, util.Truncate(string(payload), errorBodyLimit))
		return "", fmt.Errorf("%w: unmarshal response: %v", ErrConversionFailed, err)
	}
	if resp.Result == nil {
		return "", fmt.Errorf("%w: response has no result", ErrConversionFailed)
	}
	return *resp.Result, nil
}

func (c *client) Download(ctx context.Context, data string, format Format) ([]byte, error) {
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	reqBody, err := json.Marshal(downloadRequest{Data: data, Format: format})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrDownloadFailed, err)
	}

	content, err := c.post(ctx, downloadPath, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		log.Printf("download %s: %v", format, err)
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	return content, nil
}

// post sends one request and returns the body of a 2xx response.
func (c *client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(payload)) > c.maxBody && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Op:     path,
			Status: resp.StatusCode,
			Body:   util.Truncate(string(payload), errorBodyLimit),
		}
	}
	return payload, nil
}

func multipartBody(img capture.Image, kind Kind) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, img.Name))
	header.Set("Content-Type", img.MIME)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("write image part: %w", err)
	}
	if err := w.WriteField("type", string(kind)); err != nil {
		return nil, "", fmt.Errorf("write type field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
