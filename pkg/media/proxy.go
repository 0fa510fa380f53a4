package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"wabadash/internal/constants"
	apperrors "wabadash/internal/errors"
	"wabadash/internal/models"
	"wabadash/pkg/whatsapp"
	"wabadash/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// Downloader fetches provider-hosted media with the account token
type Downloader interface {
	DownloadMedia(ctx context.Context, creds whatsapp.Credentials, mediaURL string, maxBytes int64) (*types.DownloadedMedia, error)
}

// CredentialSource resolves the provider credentials for the current
// account. An empty access token means none are configured.
type CredentialSource interface {
	Credentials(ctx context.Context) (whatsapp.Credentials, error)
}

// Result is the proxied media, base64 encoded
type Result struct {
	Success     bool   `json:"success"`
	ImageData   string `json:"imageData"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

// UpstreamError is returned when the media host answers with a non-2xx
// status. Handlers pass the status through to the caller.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("media host returned status %d", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Proxy downloads provider media on behalf of the dashboard, which cannot
// attach the access token itself
type Proxy struct {
	downloader   Downloader
	credentials  CredentialSource
	allowedHosts []string
	maxBytes     int64
	logger       *logrus.Logger
}

func NewProxy(downloader Downloader, credentials CredentialSource, cfg models.MediaConfig, logger *logrus.Logger) *Proxy {
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = constants.DefaultMediaMaxBytes
	}
	return &Proxy{
		downloader:   downloader,
		credentials:  credentials,
		allowedHosts: allowedHosts(cfg),
		maxBytes:     maxBytes,
		logger:       logger,
	}
}

// Fetch downloads mediaURL with the stored access token
func (p *Proxy) Fetch(ctx context.Context, mediaURL string) (*Result, error) {
	mediaURL = strings.TrimSpace(mediaURL)
	if mediaURL == "" {
		return nil, apperrors.NewInputError("imageUrl is required", nil)
	}
	if err := validateDownloadURL(mediaURL, p.allowedHosts); err != nil {
		return nil, apperrors.NewInputError("imageUrl is not an allowed media URL", err)
	}

	creds, err := p.credentials.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	if creds.AccessToken == "" {
		return nil, apperrors.NewMissingConfigError("access_token", "Access token not found")
	}

	media, err := p.downloader.DownloadMedia(ctx, creds, mediaURL, p.maxBytes)
	if err != nil {
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) {
			p.logger.WithField("status_code", apiErr.StatusCode).Warn("Media host rejected download")
			return nil, &UpstreamError{StatusCode: apiErr.StatusCode, Err: err}
		}
		p.logger.WithError(err).Warn("Media download failed")
		return nil, apperrors.NewMediaError("download", err)
	}

	contentType := media.ContentType
	if contentType == "" {
		contentType = constants.DefaultImageMIME
	}

	p.logger.WithFields(logrus.Fields{
		"size_bytes":   len(media.Data),
		"content_type": contentType,
	}).Debug("Media proxied")

	return &Result{
		Success:     true,
		ImageData:   base64.StdEncoding.EncodeToString(media.Data),
		ContentType: contentType,
		Size:        len(media.Data),
	}, nil
}
