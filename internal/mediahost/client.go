// Package mediahost uploads compressed binaries to the storefront's media
// hosting provider. The provider accepts an unsigned multipart upload with
// an upload preset and answers with an opaque asset identifier.
package mediahost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/sirupsen/logrus"
)

// Static errors for upload operations.
var (
	// ErrNoEndpoint is returned when the client has no upload URL configured.
	ErrNoEndpoint = errors.New("mediahost: no upload URL configured")
	// ErrRejected is returned when the host answers with a non-2xx status.
	ErrRejected = errors.New("mediahost: upload rejected")
)

// Asset is the host's answer to a successful upload.
type Asset struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Bytes     int64  `json:"bytes"`
}

// Client uploads binaries to the media host.
type Client struct {
	url     string
	preset  string
	httpCli *http.Client
	log     *logrus.Logger
}

// NewClient creates a media host client. Timeout covers the whole upload;
// zero means 60 seconds.
func NewClient(url, preset string, timeout time.Duration, log *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		url:     url,
		preset:  preset,
		httpCli: &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Upload posts data as a multipart form with the configured upload preset
// and returns the host's asset descriptor.
func (c *Client) Upload(ctx context.Context, filename, mimeType string, data []byte) (*Asset, error) {
	if c.url == "" {
		return nil, ErrNoEndpoint
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("mediahost: build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("mediahost: write payload: %w", err)
	}
	if err := writer.WriteField("upload_preset", c.preset); err != nil {
		return nil, fmt.Errorf("mediahost: write preset: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("mediahost: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("mediahost: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mediahost: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, detail)
	}

	var asset Asset
	if err := json.NewDecoder(resp.Body).Decode(&asset); err != nil {
		return nil, fmt.Errorf("mediahost: decode response: %w", err)
	}

	if c.log != nil {
		c.log.WithFields(logrus.Fields{
			"public_id": asset.PublicID,
			"bytes":     asset.Bytes,
		}).Info("Asset uploaded")
	}
	return &asset, nil
}
