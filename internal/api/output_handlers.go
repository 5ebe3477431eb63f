package api

import (
	"io"
	"net/http"
	"net/url"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.current(r); !ok {
		s.writeError(w, CodeNotLoggedIn)
		return
	}
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		s.writeError(w, CodeInvalidFilename)
		return
	}
	f, err := s.deps.Outputs.Open(name)
	if err != nil {
		code := codeFor(err)
		if code == CodeInternal {
			s.logger.Error("open artifact", zap.String("file", name), zap.Error(err))
		}
		s.writeError(w, code)
		return
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Debug("close artifact", zap.Error(cerr))
		}
	}()

	info, err := f.Stat()
	if err != nil {
		s.logger.Error("stat artifact", zap.String("file", name), zap.Error(err))
		s.writeError(w, CodeInternal)
		return
	}
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		s.logger.Error("detect artifact type", zap.String("file", name), zap.Error(err))
		s.writeError(w, CodeInternal)
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		s.logger.Error("rewind artifact", zap.String("file", name), zap.Error(err))
		s.writeError(w, CodeInternal)
		return
	}
	s.logger.Info("serving artifact", zap.String("file", name), zap.String("mime", mtype.String()))
	w.Header().Set("Content-Type", mtype.String())
	http.ServeContent(w, r, name, info.ModTime(), f)
}
