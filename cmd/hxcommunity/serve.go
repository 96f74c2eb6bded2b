package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/havenova-x/hxcommunity"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveListen string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from push.listen or :8787)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the offline cache worker as a local proxy",
	Long: "Serve the app origin through the offline cache worker, receive signed push deliveries\n" +
		"and expose Prometheus metrics on /metrics.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		hub := hxcommunity.NewWindowHub(log.Logger)
		defer hub.Close()
		app, file, err := openApp(
			hxcommunity.WithAppLogger(log.Logger),
			hxcommunity.WithWindowClients(hub),
			hxcommunity.WithAppNotifier(hub),
		)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := app.Start(ctx); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}

		router, err := newRouter(app, hub, log.Logger)
		if err != nil {
			return err
		}
		addr := valueOrDefault(serveListen, valueOrDefault(file.Push.Listen, ":8787"))
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", addr).Str("origin", app.Config.AppOrigin).Msg("serving")
			errCh <- srv.ListenAndServe()
		}()
		fmt.Fprintf(os.Stderr, "Listening on %s (proxying %s)\n", addr, app.Config.AppOrigin)

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// newRouter exposes the worker's event surface and proxies every other
// path to the app origin through the worker. Windows connect on
// /sw/clients when hub is set.
func newRouter(app *hxcommunity.App, hub *hxcommunity.WindowHub, logger zerolog.Logger) (*mux.Router, error) {
	origin, err := url.Parse(app.Config.AppOrigin)
	if err != nil {
		return nil, fmt.Errorf("parse app origin: %w", err)
	}
	reg := app.Registration

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if app.Config.PushSecret != "" {
		push, err := hxcommunity.NewPushHandler(app.Config.PushSecret, reg)
		if err != nil {
			return nil, err
		}
		r.Handle("/sw/push", push.HTTPHandler()).Methods(http.MethodPost)
	} else {
		logger.Warn().Msg("push.secret not set; /sw/push disabled")
	}

	if hub != nil {
		r.Handle("/sw/clients", hub).Methods(http.MethodGet)
	}

	r.HandleFunc("/sw/message", func(w http.ResponseWriter, req *http.Request) {
		msg, err := readControlMessage(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := reg.PostMessage(req.Context(), msg); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}).Methods(http.MethodPost)

	r.HandleFunc("/sw/notificationclick", func(w http.ResponseWriter, req *http.Request) {
		var n hxcommunity.NotificationSpec
		if err := json.NewDecoder(req.Body).Decode(&n); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := reg.HandleNotificationClick(req.Context(), n); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}).Methods(http.MethodPost)

	r.HandleFunc("/sw/sync/{tag}", func(w http.ResponseWriter, req *http.Request) {
		if err := reg.HandleSync(req.Context(), mux.Vars(req)["tag"]); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}).Methods(http.MethodPost)

	r.HandleFunc("/sw/status", func(w http.ResponseWriter, req *http.Request) {
		status := map[string]string{"active": "", "waiting": ""}
		if a := reg.Active(); a != nil {
			status["active"] = a.CacheName() + " " + a.Phase().String()
		}
		if wt := reg.Waiting(); wt != nil {
			status["waiting"] = wt.CacheName() + " " + wt.Phase().String()
		}
		writeJSON(w, http.StatusOK, status)
	}).Methods(http.MethodGet)

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.Out.Host = origin.Host
		},
		Transport: reg,
		ErrorHandler: func(w http.ResponseWriter, req *http.Request, err error) {
			logger.Warn().Err(err).Str("path", req.URL.Path).Msg("proxy failed")
			writeError(w, http.StatusBadGateway, err)
		},
	}
	r.PathPrefix("/").Handler(proxy)
	return r, nil
}

// readControlMessage accepts a bare string body or {"type": "..."}.
func readControlMessage(req *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(req.Body, 4<<10))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(body))
	if strings.HasPrefix(text, "{") {
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(body, &msg); err != nil {
			return "", err
		}
		return msg.Type, nil
	}
	return strings.Trim(text, `"`), nil
}

func statusFor(err error) int {
	if errors.Is(err, hxcommunity.ErrNoActiveWorker) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
