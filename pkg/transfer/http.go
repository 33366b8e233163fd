package transfer

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/vcscache/vcscache/pkg/common"
)

// HTTP is the native Transferer. Downloads are written through a temporary
// file and renamed into place so an interrupted attempt never leaves a
// partial file at the destination path.
type HTTP struct {
	Client *http.Client

	// Headers stamped on uploads. Pre-signed storage URLs reject bodies
	// whose headers differ from what the destination was created with.
	ContentType     string
	ContentEncoding string
}

func (h *HTTP) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *HTTP) Download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := h.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return errors.Errorf("GET %s: %s: %s", url, resp.Status, string(body))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	temp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".partial-*")
	if err != nil {
		return err
	}
	defer func() {
		temp.Close()
		os.Remove(temp.Name())
	}()

	if _, err := io.Copy(temp, resp.Body); err != nil {
		return err
	}
	if err := temp.Close(); err != nil {
		return err
	}

	common.Logger(ctx).Debugf("downloaded %s to %s", url, dest)
	return os.Rename(temp.Name(), dest)
}

func (h *HTTP) Upload(ctx context.Context, source, url string) error {
	f, err := os.Open(source)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.WithMessagef(ErrSourceMissing, "%q", source)
		}
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return err
	}
	req.ContentLength = fi.Size()
	if h.ContentType != "" {
		req.Header.Set("Content-Type", h.ContentType)
	}
	if h.ContentEncoding != "" {
		req.Header.Set("Content-Encoding", h.ContentEncoding)
	}

	resp, err := h.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return errors.Errorf("PUT %s: %s: %s", url, resp.Status, string(body))
	}

	common.Logger(ctx).Debugf("uploaded %s to %s", source, url)
	return nil
}
