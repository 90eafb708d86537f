package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Paintersrp/forkrun/internal/metrics"
)

const metricsShutdownTimeout = 5 * time.Second

// startMetricsServer serves the forkrun registry on addr and returns a
// function that shuts the server down.
func startMetricsServer(addr string, out io.Writer) (func() error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	fmt.Fprintf(out, "Metrics listening on %s\n", ln.Addr())

	return func() error {
		ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, nil
}
