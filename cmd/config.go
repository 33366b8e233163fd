package cmd

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/vcscache/vcscache/pkg/cache"
)

var flagConfig cache.Config

func addConfigFlags(rootCmd *cobra.Command) {
	f := rootCmd.PersistentFlags()
	f.StringVar(&flagConfig.CacheDir, "cache-dir", "", "directory holding local snapshots, may reference environment variables")
	f.StringVar(&flagConfig.CacheName, "cache-name", "", "snapshot file pattern under the cache directory, must contain {name}")
	f.StringVar(&flagConfig.IndexURL, "index-url", "", "base URL of the record index")
	f.StringVar(&flagConfig.QueueURL, "queue-url", "", "base URL of the artifact queue")
	f.StringVar(&flagConfig.Get, "get-cmd", "", "download command template, sees {url} and {dest}")
	f.StringVar(&flagConfig.UploadTar, "upload-cmd", "", "upload command template, sees {source} and {url}")
	f.StringVar(&flagConfig.Extract, "extract-cmd", "", "extract command template, sees {source} and {dest}")
	f.StringVar(&flagConfig.Compress, "compress-cmd", "", "compress command template, sees {dest} with the files appended")
	f.IntVar(&flagConfig.DownloadAttempts, "download-attempts", 0, "download attempt budget, 0 for the default")
	f.IntVar(&flagConfig.UploadAttempts, "upload-attempts", 0, "upload attempt budget, 0 for the default")
}

// loadConfig layers the configuration: package defaults, then the config
// file when one is named, then whatever flags were set.
func loadConfig() (*cache.Config, error) {
	cfg := cache.DefaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to read config file %s", configFile)
		}
		fileConfig := &cache.Config{}
		if err := json.Unmarshal(data, fileConfig); err != nil {
			return nil, errors.WithMessagef(err, "unable to parse config file %s", configFile)
		}
		if err := cfg.Overlay(fileConfig); err != nil {
			return nil, err
		}
	}

	if err := cfg.Overlay(&flagConfig); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildCache() (*cache.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Build(nil)
}
