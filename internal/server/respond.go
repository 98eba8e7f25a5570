package server

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/engine"
	"github.com/sells-group/lifeline/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, model.ErrorPayload{Error: kind, Message: message})
}

// statusFor maps a terminal error kind to the /api/analyze status code.
func statusFor(kind string) int {
	switch engine.Kind(kind) {
	case engine.KindInvalidInput, engine.KindMissingCustomConfig:
		return http.StatusBadRequest
	case engine.KindAPIAuthFailed:
		return http.StatusUnauthorized
	case engine.KindInsufficientPoints:
		return http.StatusPaymentRequired
	case engine.KindAllModelsFailed, engine.KindInvalidAPIResponse, engine.KindEmptyModelResponse,
		engine.KindInvalidJSONFormat, engine.KindInvalidModelJSON:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeRequest reads the analysis request body. It writes a 400 and
// returns false when the body is not a JSON object or is too large.
func decodeRequest(w http.ResponseWriter, r *http.Request, limit int64) (model.AnalysisRequest, bool) {
	var req model.AnalysisRequest
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, string(engine.KindInvalidInput), "request body too large")
			return req, false
		}
		writeError(w, http.StatusBadRequest, string(engine.KindInvalidInput), "request body must be a JSON object")
		return req, false
	}
	return req, true
}

// clientIP returns the request's remote IP without the port. RealIP has
// already applied X-Forwarded-For / X-Real-IP when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func originOf(r *http.Request) model.Origin {
	return model.Origin{IP: clientIP(r), UserAgent: r.UserAgent()}
}
