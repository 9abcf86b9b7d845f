package ptiff

import (
	"log/slog"
	"runtime"

	"github.com/valyala/fasthttp"
)

const defaultTileCacheSize = 256

type options struct {
	workers   int
	cacheSize int
	logger    *slog.Logger
	bigTIFF   bool
	client    *fasthttp.Client
}

func defaultOptions() options {
	return options{
		workers:   runtime.NumCPU(),
		cacheSize: defaultTileCacheSize,
		logger:    slog.Default(),
	}
}

// Option configures a File.
type Option func(*options)

// WithWorkers bounds the number of goroutines decoding or encoding tiles
// for one operation. Values below one select runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = runtime.NumCPU()
		}
		o.workers = n
	}
}

// WithTileCache sets how many decoded compressed tiles or strips a File
// keeps. Zero disables the cache.
func WithTileCache(entries int) Option {
	return func(o *options) { o.cacheSize = entries }
}

// WithLogger sets the logger used for warnings. A nil logger silences them.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBigTIFF makes Create write a BigTIFF container.
func WithBigTIFF(big bool) Option {
	return func(o *options) { o.bigTIFF = big }
}

// WithHTTPClient sets the client used by OpenURL.
func WithHTTPClient(c *fasthttp.Client) Option {
	return func(o *options) { o.client = c }
}
