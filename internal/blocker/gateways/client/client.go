// Package client speaks the settings message protocol to a running blockd.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haukened/distraction-block/internal/blocker/domain"
)

const (
	defaultTimeout = 10 * time.Second

	errBuildRequest = "build request: %w"
	errRequest      = "request failed: %w"
	errStatus       = "unexpected response: %s"
	errDecode       = "invalid response: %w"
)

// ErrRejected is returned when the daemon answers success:false.
var ErrRejected = errors.New("daemon rejected update")

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	// BaseURL of the daemon API, e.g. http://127.0.0.1:8480.
	BaseURL string
	Timeout time.Duration
	HTTP    Doer
}

type Client struct {
	base string
	http Doer
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	doer := opts.HTTP
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}
	return &Client{base: strings.TrimRight(opts.BaseURL, "/"), http: doer}
}

// GetStatus sends getBlockingStatus.
func (c *Client) GetStatus(ctx context.Context) (domain.Status, error) {
	var st domain.Status
	if err := c.post(ctx, "/messages", domain.StatusMessage(), &st); err != nil {
		return domain.Status{}, err
	}
	if st.BlockedSites == nil {
		st.BlockedSites = []string{}
	}
	return st, nil
}

// UpdateBlocking sends the full record as updateBlocking.
func (c *Client) UpdateBlocking(ctx context.Context, s domain.Settings) error {
	var ack domain.Ack
	if err := c.post(ctx, "/messages", domain.UpdateMessage(s), &ack); err != nil {
		return err
	}
	return ackErr(ack)
}

// Focus asks the daemon to reload settings from its store.
func (c *Client) Focus(ctx context.Context) error {
	var ack domain.Ack
	if err := c.post(ctx, "/events/focus", struct{}{}, &ack); err != nil {
		return err
	}
	return ackErr(ack)
}

func ackErr(ack domain.Ack) error {
	if ack.Success {
		return nil
	}
	if ack.Error == "" {
		return ErrRejected
	}
	return fmt.Errorf("%w: %s", ErrRejected, ack.Error)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf(errBuildRequest, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf(errBuildRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf(errRequest, err)
	}
	defer resp.Body.Close()

	// 500 still carries an Ack describing the failure.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf(errStatus, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf(errDecode, err)
	}
	return nil
}
