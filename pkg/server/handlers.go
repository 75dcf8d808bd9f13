package server

import (
	"net/http"

	"github.com/matzehuels/pipelinecheck/pkg/errors"
)

type healthResponse struct {
	Ping string `json:"Ping"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Ping: "Pong"})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	req, err := decodeParseRequest(w, r, s.maxBodyBytes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.runner == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeInternal, "no analysis runner configured"))
		return
	}

	res, err := s.runner.Analyze(r.Context(), req.pipeline())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if res.CacheHit {
		w.Header().Set(cacheHeader, "HIT")
	} else {
		w.Header().Set(cacheHeader, "MISS")
	}
	writeJSON(w, http.StatusOK, res.Analysis)
}
