// Package graphicservice exposes the loader over HTTP: GET /graphic?url=...
// returns the decoded image re-encoded as PNG (still) or GIF (animated).
package graphicservice

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-graphicfetch/pkg/fetcher"
	"github.com/illmade-knight/go-graphicfetch/pkg/graphic"
	"github.com/illmade-knight/go-graphicfetch/pkg/loader"
	"github.com/illmade-knight/go-graphicfetch/pkg/microservice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// GraphicLoader is the part of *loader.Loader the service uses.
type GraphicLoader interface {
	Fetch(key string, listener loader.Listener[graphic.Graphic])
	Cancel(key string, listener loader.Listener[graphic.Graphic]) bool
}

// Service serves graphics through a shared loader.
type Service struct {
	*microservice.BaseServer
	loader GraphicLoader
	logger zerolog.Logger
}

// New creates the service and registers its routes.
func New(l GraphicLoader, httpPort string, gatherer prometheus.Gatherer, logger zerolog.Logger) *Service {
	s := &Service{
		BaseServer: microservice.NewBaseServer(logger, httpPort, gatherer),
		loader:     l,
		logger:     logger.With().Str("component", "GraphicService").Logger(),
	}
	s.Mux().HandleFunc("/graphic", s.handleGraphic)
	return s
}

func (s *Service) handleGraphic(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-ID", requestID)
	logger := s.logger.With().Str("request_id", requestID).Logger()

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	target, err := fetcher.ResolveURL(query.Get("base"), query.Get("url"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if u, err := url.Parse(target); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		http.Error(w, "url must be an absolute http or https URL", http.StatusBadRequest)
		return
	}

	listener := loader.NewChanListener[graphic.Graphic]()
	s.loader.Fetch(target, listener)

	var result loader.Result[graphic.Graphic]
	select {
	case result = <-listener.Results():
	case <-r.Context().Done():
		if s.loader.Cancel(target, listener) {
			logger.Debug().Str("url", target).Msg("Client went away, request cancelled.")
		}
		return
	}

	if result.Err != nil {
		status := statusForError(result.Err)
		logger.Warn().Err(result.Err).Str("url", target).Int("status", status).Msg("Failed to load graphic.")
		http.Error(w, result.Err.Error(), status)
		return
	}

	var buf bytes.Buffer
	if err := graphic.Encode(result.Value, &buf); err != nil {
		logger.Error().Err(err).Str("url", target).Msg("Failed to encode graphic.")
		http.Error(w, "failed to encode graphic", http.StatusInternalServerError)
		return
	}

	contentType := "image/png"
	if _, ok := result.Value.(*graphic.Animated); ok {
		contentType = "image/gif"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Frame-Count", strconv.Itoa(result.Value.FrameCount()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, fetcher.ErrOversizedPayload):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, graphic.ErrUndecodable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fetcher.ErrTransport), errors.Is(err, fetcher.ErrTruncatedResponse):
		return http.StatusBadGateway
	case errors.Is(err, loader.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
