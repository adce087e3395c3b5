package wireproxy

import (
	"context"
	"net/http"

	"github.com/weebpoly/syncplay-go/internal/v1/logging"
	"go.uber.org/zap"
)

// ListenAndServeWS runs the WebSocket front-end on port until ctx is
// cancelled, upgrading every request at "/" and bridging it upstream.
func (p *Proxy) ListenAndServeWS(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", p.ServeWS)

	srv := &http.Server{Addr: addrFor(port), Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logging.Info(ctx, "wireproxy: listening (ws)", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
