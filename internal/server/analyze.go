package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/lifeline/internal/engine"
	"github.com/sells-group/lifeline/internal/model"
	"github.com/sells-group/lifeline/internal/settle"
	"github.com/sells-group/lifeline/internal/stream"
)

// prepare decodes the body and resolves the caller. On failure it has
// already written the response.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request) (engine.Run, bool) {
	req, ok := decodeRequest(w, r, s.cfg.MaxBodyBytes)
	if !ok {
		return engine.Run{}, false
	}
	caller, ok := s.caller(w, r)
	if !ok {
		return engine.Run{}, false
	}
	return engine.Run{Request: req, Caller: caller, Origin: originOf(r)}, true
}

// shortfall returns the INSUFFICIENT_POINTS payload when an authenticated
// caller on server credentials cannot cover the charge.
func (s *Server) shortfall(run engine.Run) *model.ErrorPayload {
	if settle.DispositionFor(run.Request, run.Caller) != settle.Charged {
		return nil
	}
	if s.deps.Calc.Affordable(run.Caller.Balance) {
		return nil
	}
	points := run.Caller.Balance
	return &model.ErrorPayload{
		Error:   string(engine.KindInsufficientPoints),
		Message: "not enough points for an analysis",
		Points:  &points,
	}
}

func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	run, ok := s.prepare(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sse := stream.NewSSE(w, s.cfg.KeepAlive, stream.CancelOnWriteError(cancel))
	if p := s.shortfall(run); p != nil {
		sse.Fail(*p)
		sse.Close()
		return
	}

	if _, err := s.deps.Stream.Run(ctx, run, sse); err != nil {
		zap.L().Debug("server: stream run ended with error",
			zap.String("kind", string(engine.KindOf(err))),
			zap.NamedError("write_error", sse.Err()),
			zap.Error(err),
		)
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	run, ok := s.prepare(w, r)
	if !ok {
		return
	}
	if p := s.shortfall(run); p != nil {
		writeJSON(w, http.StatusPaymentRequired, p)
		return
	}

	col := stream.NewCollector(nil)
	payload, err := s.deps.Sync.Run(r.Context(), run, col)
	if err == nil {
		writeJSON(w, http.StatusOK, payload)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	_, failure := col.Result()
	if failure == nil {
		failure = &model.ErrorPayload{Error: string(engine.KindOf(err)), Message: "analysis failed"}
	}
	writeJSON(w, statusFor(failure.Error), failure)
}
