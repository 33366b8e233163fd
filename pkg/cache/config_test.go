package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vcscache/vcscache/pkg/archive"
	"github.com/vcscache/vcscache/pkg/transfer"
)

func TestConfigOverlay(t *testing.T) {
	assert := assert.New(t)

	config := DefaultConfig()
	assert.NotEmpty(config.CacheDir)
	assert.Contains(config.CacheName, "{name}")

	// the config file layer
	err := config.Overlay(&Config{
		CacheDir: "/var/cache/vcscache",
		IndexURL: "https://index.example.com/v1",
		QueueURL: "https://queue.example.com/v1",
	})
	assert.NoError(err)

	// the flag layer wins where set, leaves the rest alone
	err = config.Overlay(&Config{
		IndexURL:         "http://localhost:9999/index",
		DownloadAttempts: 3,
	})
	assert.NoError(err)

	assert.Equal("/var/cache/vcscache", config.CacheDir)
	assert.Equal("http://localhost:9999/index", config.IndexURL)
	assert.Equal("https://queue.example.com/v1", config.QueueURL)
	assert.Equal("clones/{name}.tar.gz", config.CacheName)
	assert.Equal(3, config.DownloadAttempts)
	assert.Equal(0, config.UploadAttempts)
}

func TestConfigBuildNativeBackends(t *testing.T) {
	assert := assert.New(t)

	config := DefaultConfig()
	config.CacheDir = t.TempDir()

	c, err := config.Build(nil)
	assert.NoError(err)

	retry, ok := c.transferer.(*transfer.Retry)
	assert.True(ok)
	_, ok = retry.Transferer.(*transfer.HTTP)
	assert.True(ok)
	_, ok = c.archiver.(archive.TarGz)
	assert.True(ok)

	// no index configured means local-only operation
	assert.Nil(c.index)
}

func TestConfigBuildCommandBackends(t *testing.T) {
	assert := assert.New(t)

	config := DefaultConfig()
	config.CacheDir = t.TempDir()
	config.Get = "curl -sSfL -o {dest} {url}"
	config.UploadTar = "curl -sSf -X PUT --data-binary @{source} {url}"
	config.Extract = "tar xzf {source} -C {dest}"
	config.Compress = "tar czf {dest}"

	c, err := config.Build(nil)
	assert.NoError(err)

	retry, ok := c.transferer.(*transfer.Retry)
	assert.True(ok)
	_, ok = retry.Transferer.(*transfer.Command)
	assert.True(ok)
	_, ok = c.archiver.(*archive.Command)
	assert.True(ok)
}

func TestConfigBuildRejectsHalfPairs(t *testing.T) {
	assert := assert.New(t)

	config := DefaultConfig()
	config.CacheDir = t.TempDir()
	config.Get = "curl -o {dest} {url}"
	_, err := config.Build(nil)
	assert.ErrorContains(err, "uploadTar")

	config = DefaultConfig()
	config.CacheDir = t.TempDir()
	config.Compress = "tar czf {dest}"
	_, err = config.Build(nil)
	assert.ErrorContains(err, "extract")
}

func TestConfigBuildRequiresQueueWithIndex(t *testing.T) {
	assert := assert.New(t)

	config := DefaultConfig()
	config.CacheDir = t.TempDir()
	config.IndexURL = "http://localhost:9999/index"

	_, err := config.Build(nil)
	assert.ErrorContains(err, "queueUrl")
}

func TestConfigBuildEnvExpansion(t *testing.T) {
	assert := assert.New(t)

	config := DefaultConfig()
	config.CacheDir = "$WORKER_CACHE/vcscache"

	c, err := config.Build(func(key string) string {
		if key == "WORKER_CACHE" {
			return "/scratch"
		}
		return ""
	})
	assert.NoError(err)
	assert.Equal("/scratch/vcscache", c.layout.Dir())
}
