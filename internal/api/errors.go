package api

import (
	"errors"
	"net/http"

	"github.com/JakeFAU/scraperhub/internal/output"
	"github.com/JakeFAU/scraperhub/internal/session"
	"github.com/JakeFAU/scraperhub/internal/users"
)

// Code is a stable client-facing error number.
type Code int

// Error codes grouped by area: 1xx users, 2xx scrapers, 3xx output.
const (
	CodeUnknownUser     Code = 100
	CodeLoginFailed     Code = 101
	CodeMissingFields   Code = 102
	CodeAlreadyLoggedIn Code = 103
	CodeNotLoggedIn     Code = 104
	CodeUserExists      Code = 105
	CodeScraperNotFound Code = 200
	CodeScraperRunning  Code = 201
	CodeFileNotFound    Code = 300
	CodeInvalidFilename Code = 301
	CodeInternal        Code = 500
)

type apiError struct {
	status int
	msg    string
}

var codes = map[Code]apiError{
	CodeUnknownUser:     {http.StatusUnauthorized, "who is this user!?"},
	CodeLoginFailed:     {http.StatusUnauthorized, "user does not exist."},
	CodeMissingFields:   {http.StatusBadRequest, "missing fields."},
	CodeAlreadyLoggedIn: {http.StatusConflict, "already someone logged in."},
	CodeNotLoggedIn:     {http.StatusUnauthorized, "user not logged in."},
	CodeUserExists:      {http.StatusConflict, "user already exists."},
	CodeScraperNotFound: {http.StatusNotFound, "scraper does not exist."},
	CodeScraperRunning:  {http.StatusConflict, "scraper already running."},
	CodeFileNotFound:    {http.StatusNotFound, "file does not exist."},
	CodeInvalidFilename: {http.StatusBadRequest, "invalid filename."},
	CodeInternal:        {http.StatusInternalServerError, "internal server error."},
}

// ErrorBody is the JSON envelope of a failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the code and message of a failure.
type ErrorDetail struct {
	Code Code   `json:"code"`
	Msg  string `json:"msg"`
}

func (s *Server) writeError(w http.ResponseWriter, code Code) {
	e, ok := codes[code]
	if !ok {
		code, e = CodeInternal, codes[CodeInternal]
	}
	s.writeJSON(w, e.status, ErrorBody{Error: ErrorDetail{Code: code, Msg: e.msg}})
}

// codeFor maps domain errors onto client codes.
func codeFor(err error) Code {
	switch {
	case errors.Is(err, users.ErrLoginFailed):
		return CodeLoginFailed
	case errors.Is(err, users.ErrMissingFields):
		return CodeMissingFields
	case errors.Is(err, users.ErrAlreadyLoggedIn):
		return CodeAlreadyLoggedIn
	case errors.Is(err, users.ErrUserExists):
		return CodeUserExists
	case errors.Is(err, session.ErrScraperNotFound):
		return CodeScraperNotFound
	case errors.Is(err, session.ErrAlreadyRunning):
		return CodeScraperRunning
	case errors.Is(err, session.ErrSessionClosed):
		return CodeNotLoggedIn
	case errors.Is(err, output.ErrNotFound):
		return CodeFileNotFound
	case errors.Is(err, output.ErrInvalidName):
		return CodeInvalidFilename
	default:
		return CodeInternal
	}
}
