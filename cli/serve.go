package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/forgeworks/forge/notify"
)

// Serve runs the websocket notification endpoint until ctx is cancelled.
// Clients connect to /ws and receive every event the running commands emit.
func Serve(ctx context.Context, hub *notify.Hub, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	fmt.Printf("Notification server listening on %s\n", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
