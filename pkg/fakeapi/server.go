// Package fakeapi is an in-memory implementation of the deploy service, for tests and local development.
package fakeapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	chi_middleware "github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/nais/sitedeploy/pkg/api"
	"github.com/nais/sitedeploy/pkg/hashing"
)

// Maximum accepted size of a single uploaded file or function.
const maxUploadSize = 512 << 20

type Config struct {
	// AuthToken is required as a bearer token on every request if set.
	AuthToken string
	// BaseURL is used to build admin links in deploy responses.
	BaseURL string
	// HashAlgorithm verifies uploaded content against the manifest if set.
	HashAlgorithm string
	// DiffDelay is how long an asynchronous deploy stays in the preparing state.
	DiffDelay time.Duration
	// ProcessingDelay is how long a fully uploaded deploy takes to become ready.
	ProcessingDelay time.Duration
	// Registerer receives request metrics. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// Server serves the deploy API over HTTP.
type Server struct {
	chi.Router

	store     *store
	algorithm *hashing.Algorithm
	authToken string

	lock     sync.Mutex
	faults   map[string][]int
	attempts map[string]int
	retries  map[string][]string
}

func New(cfg Config) (*Server, error) {
	s := &Server{
		store:     newStore(cfg.BaseURL, cfg.DiffDelay, cfg.ProcessingDelay),
		authToken: cfg.AuthToken,
		faults:    make(map[string][]int),
		attempts:  make(map[string]int),
		retries:   make(map[string][]string),
	}

	if len(cfg.HashAlgorithm) > 0 {
		algorithm, err := hashing.NewAlgorithm(cfg.HashAlgorithm)
		if err != nil {
			return nil, err
		}
		s.algorithm = &algorithm
	}

	registerer := cfg.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	metrics, err := newPrometheusMiddleware("fakedeployd", registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	router := chi.NewRouter()
	router.Use(
		chi_middleware.Recoverer,
		requestLogger,
		metrics.handler,
	)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/sites/{site_id}/deploys", func(r chi.Router) {
			r.With(chi_middleware.AllowContentType("application/json")).Post("/", s.createDeploy)
			r.With(chi_middleware.AllowContentType("application/json")).Put("/{deploy_id}", s.updateDeploy)
			r.Get("/{deploy_id}", s.getDeploy)
		})

		r.Route("/deploys/{deploy_id}", func(r chi.Router) {
			r.Post("/cancel", s.cancelDeploy)
			r.Put("/files/*", s.uploadFile)
			r.Put("/functions/{name}", s.uploadFunction)
		})
	})

	s.Router = router

	return s, nil
}

// FailUploads makes the next uploads of path, a file path or function name, fail with the given
// statuses in order. A status of zero lets that attempt through.
func (s *Server) FailUploads(path string, statuses ...int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.faults[path] = append(s.faults[path], statuses...)
}

// UploadAttempts returns how many upload requests have been made for path.
func (s *Server) UploadAttempts(path string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.attempts[path]
}

// RetryHeaders returns the retry count header of every upload request for a function.
func (s *Server) RetryHeaders(name string) []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.retries[name]...)
}

// Live returns the manifest of the site's most recently published deploy.
func (s *Server) Live(siteID string) map[string]string {
	return s.store.live(siteID)
}

// Content returns stored content by digest.
func (s *Server) Content(siteID, digest string) ([]byte, bool) {
	return s.store.content(siteID, digest)
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.authToken) > 0 && r.Header.Get("Authorization") != "Bearer "+s.authToken {
			render.Render(w, r, ErrUnauthorized(errors.New("invalid or missing access token")))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// injectFault counts the attempt and reports the status to fail it with, if any.
func (s *Server) injectFault(path string) int {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.attempts[path]++

	statuses := s.faults[path]
	if len(statuses) == 0 {
		return 0
	}
	s.faults[path] = statuses[1:]
	return statuses[0]
}

func storeError(w http.ResponseWriter, r *http.Request, err error) {
	var mismatch *digestMismatchError
	switch {
	case errors.Is(err, ErrDeployNotFound):
		render.Render(w, r, ErrNotFound)
	case errors.Is(err, ErrInvalidPath), errors.Is(err, ErrNotRequired), errors.As(err, &mismatch):
		render.Render(w, r, ErrUnprocessable(err))
	case errors.Is(err, ErrDeployClosed):
		render.Render(w, r, ErrConflict(err))
	default:
		log.Errorf("unhandled error: %s", err)
		render.Render(w, r, errResponse(http.StatusInternalServerError, err.Error()))
	}
}

func (s *Server) createDeploy(w http.ResponseWriter, r *http.Request) {
	s.putDeploy(w, r, "", http.StatusCreated)
}

func (s *Server) updateDeploy(w http.ResponseWriter, r *http.Request) {
	s.putDeploy(w, r, chi.URLParam(r, "deploy_id"), http.StatusOK)
}

func (s *Server) putDeploy(w http.ResponseWriter, r *http.Request, deployID string, status int) {
	request := &api.DeployRequest{}
	if err := render.DecodeJSON(r.Body, request); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	deploy, err := s.store.put(chi.URLParam(r, "site_id"), deployID, request)
	if err != nil {
		storeError(w, r, err)
		return
	}

	log.WithFields(log.Fields{
		"deploy_id":          deploy.ID,
		"files":              len(request.Files),
		"functions":          len(request.Functions),
		"required":           len(deploy.Required),
		"required_functions": len(deploy.RequiredFunctions),
		"async":              request.Async,
	}).Info("Deploy negotiated")

	render.Status(r, status)
	render.JSON(w, r, deploy)
}

func (s *Server) getDeploy(w http.ResponseWriter, r *http.Request) {
	deploy, err := s.store.get(chi.URLParam(r, "site_id"), chi.URLParam(r, "deploy_id"))
	if err != nil {
		storeError(w, r, err)
		return
	}
	render.JSON(w, r, deploy)
}

func (s *Server) cancelDeploy(w http.ResponseWriter, r *http.Request) {
	deploy, err := s.store.cancel(chi.URLParam(r, "deploy_id"))
	if err != nil {
		storeError(w, r, err)
		return
	}
	render.JSON(w, r, deploy)
}

// readUpload reads and optionally fingerprints an upload body.
func (s *Server) readUpload(r *http.Request) ([]byte, string, error) {
	content, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		return nil, "", err
	}
	if s.algorithm == nil {
		return content, "", nil
	}
	return content, s.algorithm.Bytes(content), nil
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if len(r.URL.RawPath) > 0 {
		unescaped, err := url.PathUnescape(path)
		if err != nil {
			render.Render(w, r, ErrInvalidRequest(err))
			return
		}
		path = unescaped
	}
	path = strings.TrimPrefix(path, "/")

	if status := s.injectFault(path); status != 0 {
		render.Render(w, r, ErrInjected(status))
		return
	}

	content, digest, err := s.readUpload(r)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	file, err := s.store.putFile(chi.URLParam(r, "deploy_id"), path, digest, content)
	if err != nil {
		storeError(w, r, err)
		return
	}
	file.MimeType = r.Header.Get("Content-Type")

	render.JSON(w, r, file)
}

func (s *Server) uploadFunction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.lock.Lock()
	s.retries[name] = append(s.retries[name], r.Header.Get(api.RetryCountHeader))
	s.lock.Unlock()

	if status := s.injectFault(name); status != 0 {
		render.Render(w, r, ErrInjected(status))
		return
	}

	content, digest, err := s.readUpload(r)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	function, err := s.store.putFunction(chi.URLParam(r, "deploy_id"), name, digest, content)
	if err != nil {
		storeError(w, r, err)
		return
	}

	render.JSON(w, r, function)
}
