// Package objectstore registers task artifacts with remote storage and hands
// back signed upload destinations.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vcscache/vcscache/pkg/common"
)

// DestinationSpec describes the artifact a destination is created for. The
// storage service echoes these properties back when the artifact is later
// retrieved, so they must match what the uploader will send.
type DestinationSpec struct {
	StorageType string    `json:"storageType"`
	ContentType string    `json:"contentType"`
	Expires     time.Time `json:"expires"`
}

// Destination is a signed upload slot. PutURL accepts exactly one PUT of the
// artifact body.
type Destination struct {
	PutURL string `json:"putUrl"`
}

// A Client allocates upload destinations on the remote store.
type Client interface {
	CreateDestination(ctx context.Context, taskID, runID, name string, spec *DestinationSpec) (*Destination, error)
}

// HTTPClient is the Client for a real storage service rooted at QueueURL.
type HTTPClient struct {
	QueueURL string
	Client   *http.Client
}

func (c *HTTPClient) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *HTTPClient) CreateDestination(ctx context.Context, taskID, runID, name string, spec *DestinationSpec) (*Destination, error) {
	if spec.Expires.IsZero() {
		return nil, errors.New("destination has no expiration")
	}

	body, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}

	url := strings.Join([]string{
		strings.TrimRight(c.QueueURL, "/"),
		"task", taskID, "runs", runID, "artifacts", name,
	}, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, errors.Errorf("POST %s: %s: %s", url, resp.Status, string(detail))
	}

	dest := &Destination{}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return nil, errors.WithMessagef(err, "unable to decode destination for %q", name)
	}
	if dest.PutURL == "" {
		return nil, errors.Errorf("destination for %q has no putUrl", name)
	}

	common.Logger(ctx).Debugf("created destination for %s on task %s run %s", name, taskID, runID)
	return dest, nil
}
