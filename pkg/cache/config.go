package cache

import (
	"net/http"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/adrg/xdg"
	"github.com/pkg/errors"

	"github.com/vcscache/vcscache/pkg/archive"
	"github.com/vcscache/vcscache/pkg/index"
	"github.com/vcscache/vcscache/pkg/objectstore"
	"github.com/vcscache/vcscache/pkg/transfer"
	"github.com/vcscache/vcscache/pkg/xcmd"
)

// Config is the full surface a deployment can tune. The command templates
// come in pairs; configuring one half of a pair is a mistake the build
// rejects rather than silently mixing backends.
type Config struct {
	// CacheDir may reference environment variables, expanded when the
	// cache is built. CacheName is the file name pattern under it and
	// must contain {name}.
	CacheDir  string `json:"cacheDir"`
	CacheName string `json:"cacheName"`

	// Service roots. IndexURL serves namespace records, QueueURL serves
	// task artifacts and upload destinations.
	IndexURL string `json:"indexUrl"`
	QueueURL string `json:"queueUrl"`

	// Optional command templates replacing the native HTTP transferer.
	// Get sees {url} and {dest}; UploadTar sees {source} and {url}.
	Get       string `json:"get"`
	UploadTar string `json:"uploadTar"`

	// Optional command templates replacing the native archiver. Extract
	// sees {source} and {dest}; Compress sees {dest} and receives the
	// file list as trailing arguments.
	Extract  string `json:"extract"`
	Compress string `json:"compress"`

	// Transfer attempt budgets. Zero means the package defaults.
	DownloadAttempts int `json:"downloadAttempts"`
	UploadAttempts   int `json:"uploadAttempts"`
}

// DefaultConfig returns the configuration used when nothing is tuned: the
// native backends, the default budgets and a per-user cache directory.
func DefaultConfig() *Config {
	return &Config{
		CacheDir:  filepath.Join(xdg.CacheHome, "vcscache"),
		CacheName: "clones/{name}.tar.gz",
	}
}

// Overlay copies every non-zero field of o over c. Layering goes defaults,
// then the config file, then command line flags.
func (c *Config) Overlay(o *Config) error {
	return mergo.Merge(c, o, mergo.WithOverride)
}

// Build wires a Cache from the configuration. A nil env resolves cache
// directory variables against the process environment.
func (c *Config) Build(env Environ) (*Cache, error) {
	layout, err := NewLayout(c.CacheDir, c.CacheName, env)
	if err != nil {
		return nil, err
	}

	transferer, err := c.buildTransferer()
	if err != nil {
		return nil, err
	}

	archiver, err := c.buildArchiver()
	if err != nil {
		return nil, err
	}

	opts := Options{
		Layout:     layout,
		Archiver:   archiver,
		Transferer: transferer,
	}
	if c.IndexURL != "" {
		if c.QueueURL == "" {
			return nil, errors.New("indexUrl is set but queueUrl is not")
		}
		opts.Index = &index.HTTPClient{IndexURL: c.IndexURL, QueueURL: c.QueueURL}
		opts.ObjectStore = &objectstore.HTTPClient{QueueURL: c.QueueURL}
	}

	return New(opts)
}

func (c *Config) buildTransferer() (transfer.Transferer, error) {
	var t transfer.Transferer
	switch {
	case c.Get != "" && c.UploadTar != "":
		download, err := xcmd.Split(c.Get)
		if err != nil {
			return nil, err
		}
		upload, err := xcmd.Split(c.UploadTar)
		if err != nil {
			return nil, err
		}
		t = &transfer.Command{DownloadArgv: download, UploadArgv: upload}
	case c.Get == "" && c.UploadTar == "":
		t = &transfer.HTTP{
			Client:          http.DefaultClient,
			ContentType:     ContentType,
			ContentEncoding: "gzip",
		}
	default:
		return nil, errors.New("get and uploadTar must be configured together")
	}

	return &transfer.Retry{
		Transferer:       t,
		DownloadAttempts: c.DownloadAttempts,
		UploadAttempts:   c.UploadAttempts,
	}, nil
}

func (c *Config) buildArchiver() (archive.Archiver, error) {
	switch {
	case c.Extract != "" && c.Compress != "":
		extract, err := xcmd.Split(c.Extract)
		if err != nil {
			return nil, err
		}
		compress, err := xcmd.Split(c.Compress)
		if err != nil {
			return nil, err
		}
		return &archive.Command{CompressArgv: compress, ExtractArgv: extract}, nil
	case c.Extract == "" && c.Compress == "":
		return archive.TarGz{}, nil
	default:
		return nil, errors.New("extract and compress must be configured together")
	}
}
