package index

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/vcscache/vcscache/pkg/common"
)

// HTTPClient is the Client for a real index service. IndexURL is the root of
// the namespace routes, QueueURL the root of the task artifact routes.
// Namespaces appear verbatim in request paths, so they must be URL-safe.
type HTTPClient struct {
	IndexURL string
	QueueURL string
	Client   *http.Client
}

func (c *HTTPClient) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *HTTPClient) Find(ctx context.Context, namespace string) (*Record, error) {
	url := joinURL(c.IndexURL, "task", namespace)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, errors.WithMessagef(ErrNotFound, "%q", namespace)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, errors.Errorf("GET %s: %s: %s", url, resp.Status, string(body))
	}

	record := &Record{}
	if err := json.NewDecoder(resp.Body).Decode(record); err != nil {
		return nil, errors.WithMessagef(err, "unable to decode record for %q", namespace)
	}

	common.Logger(ctx).Debugf("namespace %s resolves to task %s (rank %d)", namespace, record.TaskID, record.Rank)
	return record, nil
}

func (c *HTTPClient) Insert(ctx context.Context, namespace string, record *Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(record)
	if err != nil {
		return err
	}

	url := joinURL(c.IndexURL, "task", namespace)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return errors.Errorf("PUT %s: %s: %s", url, resp.Status, string(detail))
	}

	common.Logger(ctx).Debugf("indexed %s as task %s (rank %d)", namespace, record.TaskID, record.Rank)
	return nil
}

func (c *HTTPClient) ArtifactURL(taskID, name string) string {
	return joinURL(c.QueueURL, "task", taskID, "artifacts", name)
}
