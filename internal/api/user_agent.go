package api

import (
	"errors"
	"net/http"

	"github.com/dunamismax/pixelkit/internal/useragent"
)

func (s *Server) handleFakeUserAgent(w http.ResponseWriter, r *http.Request) {
	browser := useragent.Random
	if query := r.URL.Query(); query.Has("browser") {
		browser = query.Get("browser")
	}

	ua, err := s.userAgents.Get(browser)
	if err != nil {
		if !errors.Is(err, useragent.ErrUnknownBrowser) {
			s.logger.Error().Err(err).Str("browser", browser).Msg("user agent lookup failed")
		}
		s.metrics.userAgents.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "Invalid browser type.")
		return
	}

	s.metrics.userAgents.WithLabelValues(useragent.Normalize(browser)).Inc()
	writeJSON(w, http.StatusOK, map[string]string{
		"browser":    browser,
		"user_agent": ua,
	})
}
