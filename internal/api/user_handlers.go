package api

import (
	"net/http"

	"go.uber.org/zap"
)

type userView struct {
	Username      string `json:"username"`
	Email         string `json:"email"`
	ActiveScraper *bool  `json:"active_scraper,omitempty"`
}

// field reads a credential from the request headers, falling back to form
// values.
func field(r *http.Request, name string) string {
	if v := r.Header.Get(name); v != "" {
		return v
	}
	return r.FormValue(name)
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	u, sess, ok := s.current(r)
	if !ok {
		s.writeError(w, CodeUnknownUser)
		return
	}
	_, _, running := sess.Active()
	s.writeJSON(w, http.StatusOK, map[string]userView{
		"user": {Username: u.Username, Email: u.Email, ActiveScraper: &running},
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	email, password := field(r, "email"), field(r, "password")
	if email == "" || password == "" {
		s.writeError(w, CodeMissingFields)
		return
	}
	u, token, err := s.deps.Users.Login(s.jar.token(r), email, password)
	if err != nil {
		code := codeFor(err)
		if code == CodeInternal {
			s.logger.Error("login failed", zap.Error(err))
		}
		s.writeError(w, code)
		return
	}
	if err := s.jar.set(w, token); err != nil {
		s.logger.Error("set session cookie", zap.Error(err))
		s.writeError(w, CodeInternal)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]userView{
		"user": {Username: u.Username, Email: u.Email},
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if token := s.jar.token(r); token != "" {
		s.deps.Users.Logout(token)
	}
	s.jar.clear(w)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Users.Register(field(r, "username"), field(r, "email"), field(r, "password"))
	if err != nil {
		code := codeFor(err)
		if code == CodeInternal {
			s.logger.Error("register failed", zap.Error(err))
		}
		s.writeError(w, code)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]userView{
		"user": {Username: u.Username, Email: u.Email},
	})
}
