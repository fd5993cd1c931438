package main

import (
	"net/http"
	"slices"

	"go.uber.org/zap"

	"pricerelay/internal/session"
	"pricerelay/internal/wsconn"
)

// sessionOpener is the part of session.Manager the router needs.
type sessionOpener interface {
	Open(conn session.Conn) (*session.Session, error)
}

func newRouter(sessions sessionOpener, origins []string, logger *zap.Logger) http.Handler {
	upgrader := wsconn.NewUpgrader(origins)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Backend is live"))
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsconn.Accept(w, r, upgrader, wsconn.Options{}, logger)
		if err != nil {
			// the upgrader has already answered the request
			logger.Debug("websocket upgrade failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
			return
		}
		if _, err := sessions.Open(conn); err != nil {
			logger.Info("rejecting connection", zap.Error(err))
		}
	})

	return withCORS(origins, recoverPanic(logger, mux))
}

// withCORS answers preflight requests and sets the allow headers for
// origins in the allowlist. "*" allows any origin.
func withCORS(origins []string, next http.Handler) http.Handler {
	allowAll := slices.Contains(origins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(origins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
