package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cove_uploads_total",
		Help: "Number of successfully completed uploads.",
	})
	UploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cove_upload_bytes_total",
		Help: "Total bytes accepted across completed uploads.",
	})
	DownloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cove_downloads_total",
		Help: "Number of file download requests served.",
	})
	DeletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cove_deletes_total",
		Help: "Number of files deleted via the API.",
	})
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cove_rate_limited_total",
		Help: "Number of requests rejected by the rate limiter.",
	})
)

// Register attaches the Prometheus metrics endpoint to the router.
func Register(e *echo.Echo, path string) {
	e.GET(path, echo.WrapHandler(promhttp.Handler()))
}
