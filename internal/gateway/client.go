// Package gateway talks to the bank-transfer gateway over HTTP: QR images and the bank list.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/stockvn/paygate/internal/xerrors"
)

const (
	defaultTimeout = 15 * time.Second
	retryCount     = 2
	// maxQRBytes caps a proxied QR image.
	maxQRBytes = 1 << 20
)

type Client struct {
	http     *resty.Client
	banksURL string
}

func NewClient(banksURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &Client{http: httpClient, banksURL: banksURL}
}

// Bank is one entry of the gateway's bank list.
type Bank struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	BIN       string `json:"bin"`
	ShortName string `json:"short_name"`
	Supported bool   `json:"supported"`
}

type banksResponse struct {
	Data []Bank `json:"data"`
}

// FetchBanks downloads the bank list.
func (c *Client) FetchBanks(ctx context.Context) ([]Bank, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.banksURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindUpstreamUnavailable, err, "failed to fetch bank list")
	}
	if resp.IsError() {
		return nil, xerrors.Newf(xerrors.KindUpstreamUnavailable, "bank list returned status %d", resp.StatusCode())
	}

	var body banksResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, xerrors.Wrap(xerrors.KindUpstreamUnavailable, err, "failed to decode bank list")
	}
	return body.Data, nil
}

// RenderQR downloads the QR image at url and returns its bytes and content type.
func (c *Client) RenderQR(ctx context.Context, url string) ([]byte, string, error) {
	if url == "" {
		return nil, "", xerrors.NotFound("QR code")
	}
	resp, err := c.http.R().SetContext(ctx).SetHeader("Accept", "image/png,image/*").Get(url)
	if err != nil {
		return nil, "", xerrors.Wrap(xerrors.KindUpstreamUnavailable, err, "failed to fetch QR image")
	}
	if resp.IsError() {
		return nil, "", xerrors.Newf(xerrors.KindUpstreamUnavailable, "QR service returned status %d", resp.StatusCode())
	}

	body := resp.Body()
	if len(body) > maxQRBytes {
		return nil, "", xerrors.New(xerrors.KindUpstreamUnavailable, fmt.Sprintf("QR image exceeds %d bytes", maxQRBytes))
	}
	contentType := resp.Header().Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(body)
	}
	return body, contentType, nil
}
