package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
)

type contextKey string

const localeCtxKey contextKey = "locale"

func localeFromCtx(r *http.Request) language.Tag {
	if tag, ok := r.Context().Value(localeCtxKey).(language.Tag); ok {
		return tag
	}
	return language.English
}

// localeMiddleware resolves Accept-Language once per request. Requests without
// one get the configured default.
func (a *app) localeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value := strings.TrimSpace(r.Header.Get("Accept-Language"))
		if value == "" {
			value = a.cfg.Locale.Default
		}
		ctx := context.WithValue(r.Context(), localeCtxKey, joberror.MatchLocale(value))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			l := logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			next.ServeHTTP(ww, r.WithContext(l.WithContext(r.Context())))

			l.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("ip", clientIP(r)).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}

func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("json encode error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, models.ErrorResponse{Error: msg})
}

// writeJobError renders a classified error in the caller's language.
func writeJobError(w http.ResponseWriter, r *http.Request, status int, err error) {
	kind := joberror.KindOf(err)
	writeJSON(w, r, status, models.ErrorResponse{
		Error: joberror.Message(kind, err.Error(), localeFromCtx(r)),
		Kind:  string(kind),
	})
}
