package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/history"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (s *Server) listScrapers(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.current(r); !ok {
		s.writeError(w, CodeNotLoggedIn)
		return
	}
	names := s.deps.Scrapers.ScraperNames()
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"scraper_list": names})
}

type startRequest struct {
	Name string `json:"name"`
}

// scraperName reads the scraper_name header, or a JSON body {"name": ...}.
func scraperName(r *http.Request) string {
	if name := strings.TrimSpace(r.Header.Get("scraper_name")); name != "" {
		return name
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return ""
	}
	var req startRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.Name)
}

func (s *Server) startScraper(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.current(r)
	if !ok {
		s.writeError(w, CodeNotLoggedIn)
		return
	}
	name := scraperName(r)
	if name == "" {
		s.writeError(w, CodeScraperNotFound)
		return
	}
	sc, err := sess.StartJob(r.Context(), name)
	if err != nil {
		code := codeFor(err)
		if code == CodeInternal {
			s.logger.Error("start scraper", zap.String("scraper", name), zap.Error(err))
		}
		s.writeError(w, code)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"scraper": sc.Name()})
}

func (s *Server) scraperHistory(w http.ResponseWriter, r *http.Request) {
	u, _, ok := s.current(r)
	if !ok {
		s.writeError(w, CodeNotLoggedIn)
		return
	}
	runs := []history.Run{}
	if s.deps.History != nil {
		list, err := s.deps.History.ListRuns(r.Context(), u.Email, historyLimit(r))
		if err != nil {
			s.logger.Error("list runs", zap.Error(err))
			s.writeError(w, CodeInternal)
			return
		}
		if list != nil {
			runs = list
		}
	}
	s.writeJSON(w, http.StatusOK, map[string][]history.Run{"runs": runs})
}

// historyLimit reads ?limit=, falling back to the default when absent or
// invalid and clamping to the maximum.
func historyLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultHistoryLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	if n > maxHistoryLimit {
		return maxHistoryLimit
	}
	return n
}
