package fakeapi

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nais/sitedeploy/pkg/api"
)

var (
	ErrDeployNotFound = errors.New("deploy not found")
	ErrNotRequired    = errors.New("not part of the deploy")
	ErrDeployClosed   = errors.New("deploy does not accept uploads")
	ErrInvalidPath    = errors.New("invalid path")
)

type deploy struct {
	api.Deploy

	files     map[string]string
	functions map[string]string

	// Paths and function names whose content has not been uploaded yet.
	pendingFiles     map[string]bool
	pendingFunctions map[string]bool

	diffReadyAt time.Time
	uploadedAt  time.Time
}

type site struct {
	// Content addressed storage shared by every deploy of the site.
	blobs     map[string][]byte
	functions map[string][]byte

	// Published manifest of the most recent ready deploy.
	live map[string]string
}

// store keeps every site and deploy in memory.
type store struct {
	lock    sync.Mutex
	sites   map[string]*site
	deploys map[string]*deploy

	baseURL         string
	diffDelay       time.Duration
	processingDelay time.Duration
	now             func() time.Time
}

func newStore(baseURL string, diffDelay, processingDelay time.Duration) *store {
	return &store{
		sites:           make(map[string]*site),
		deploys:         make(map[string]*deploy),
		baseURL:         strings.TrimSuffix(baseURL, "/"),
		diffDelay:       diffDelay,
		processingDelay: processingDelay,
		now:             time.Now,
	}
}

func (s *store) site(siteID string) *site {
	st, ok := s.sites[siteID]
	if !ok {
		st = &site{
			blobs:     make(map[string][]byte),
			functions: make(map[string][]byte),
		}
		s.sites[siteID] = st
	}
	return st
}

func validatePaths(files map[string]string) error {
	for path := range files {
		if len(path) == 0 || strings.HasPrefix(path, "/") || strings.ContainsAny(path, "#?") {
			return fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return nil
}

// pending returns every key whose digest is not in content, plus the sorted set of those digests.
func pending(manifest map[string]string, content map[string][]byte) (map[string]bool, []string) {
	keys := make(map[string]bool)
	digests := make(map[string]bool)
	for key, digest := range manifest {
		if _, ok := content[digest]; !ok {
			keys[key] = true
			digests[digest] = true
		}
	}

	required := make([]string, 0, len(digests))
	for digest := range digests {
		required = append(required, digest)
	}
	sort.Strings(required)

	return keys, required
}

// put creates a new deploy, or replaces the desired state of an existing one when deployID is set.
func (s *store) put(siteID, deployID string, request *api.DeployRequest) (*api.Deploy, error) {
	if err := validatePaths(request.Files); err != nil {
		return nil, err
	}
	if err := validatePaths(request.Functions); err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.now()
	st := s.site(siteID)

	d, ok := s.deploys[deployID]
	if len(deployID) == 0 {
		d = &deploy{}
		d.ID = uuid.NewString()
		d.SiteID = siteID
		d.Title = request.Title
		d.CreatedAt = now.UTC().Format(time.RFC3339)
		s.deploys[d.ID] = d
	} else if !ok || d.SiteID != siteID {
		return nil, ErrDeployNotFound
	}

	d.Branch = request.Branch
	d.Draft = request.Draft
	d.files = request.Files
	d.functions = request.Functions
	d.ErrorMessage = ""
	d.pendingFiles, d.Required = pending(request.Files, st.blobs)
	d.pendingFunctions, d.RequiredFunctions = pending(request.Functions, st.functions)

	d.State = api.StatePrepared
	if request.Async {
		d.State = api.StatePreparing
		d.diffReadyAt = now.Add(s.diffDelay)
	}

	host := fmt.Sprintf("%s.sites.local", siteID)
	d.URL = "http://" + host
	d.SSLURL = "https://" + host
	d.DeployURL = fmt.Sprintf("http://%s--%s", d.ID, host)
	d.DeploySSLURL = fmt.Sprintf("https://%s--%s", d.ID, host)
	d.AdminURL = fmt.Sprintf("%s/sites/%s/deploys/%s", s.baseURL, siteID, d.ID)

	s.advance(d, now)

	return s.view(d), nil
}

// advance moves a deploy through its states based on elapsed time and completed uploads.
func (s *store) advance(d *deploy, now time.Time) {
	if d.State == api.StatePreparing && !now.Before(d.diffReadyAt) {
		d.State = api.StatePrepared
	}

	switch d.State {
	case api.StatePrepared, api.StateUploading:
		if len(d.pendingFiles) == 0 && len(d.pendingFunctions) == 0 {
			d.State = api.StateUploaded
			d.uploadedAt = now
		}
	}

	if d.State == api.StateUploaded && !now.Before(d.uploadedAt.Add(s.processingDelay)) {
		d.State = api.StateReady
		live := make(map[string]string, len(d.files))
		for path, digest := range d.files {
			live[path] = digest
		}
		s.site(d.SiteID).live = live
	}
}

// view copies the public part of a deploy. The diff is hidden until it has been computed.
func (s *store) view(d *deploy) *api.Deploy {
	out := d.Deploy
	if d.State == api.StatePreparing {
		out.Required = nil
		out.RequiredFunctions = nil
	}
	return &out
}

func (s *store) get(siteID, deployID string) (*api.Deploy, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	d, ok := s.deploys[deployID]
	if !ok || d.SiteID != siteID {
		return nil, ErrDeployNotFound
	}

	s.advance(d, s.now())

	return s.view(d), nil
}

func (s *store) cancel(deployID string) (*api.Deploy, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	d, ok := s.deploys[deployID]
	if !ok {
		return nil, ErrDeployNotFound
	}

	if d.State != api.StateReady {
		d.State = api.StateError
		d.ErrorMessage = "Deploy was canceled"
	}

	return s.view(d), nil
}

func (s *store) uploadable(d *deploy) error {
	switch d.State {
	case api.StatePrepared, api.StateUploading:
		return nil
	}
	return fmt.Errorf("%w in state %q", ErrDeployClosed, d.State)
}

// putFile stores the content of a single path. digest is computed by the caller from content.
func (s *store) putFile(deployID, path, digest string, content []byte) (*api.DeployFile, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	d, ok := s.deploys[deployID]
	if !ok {
		return nil, ErrDeployNotFound
	}
	s.advance(d, s.now())
	if err := s.uploadable(d); err != nil {
		return nil, err
	}

	expected, ok := d.files[path]
	if !ok {
		return nil, fmt.Errorf("file %q %w", path, ErrNotRequired)
	}
	if len(digest) > 0 && digest != expected {
		return nil, &digestMismatchError{path: path, expected: expected, actual: digest}
	}

	s.site(d.SiteID).blobs[expected] = content
	delete(d.pendingFiles, path)
	d.State = api.StateUploading
	s.advance(d, s.now())

	return &api.DeployFile{
		ID:   uuid.NewString(),
		Path: path,
		SHA:  expected,
		Size: int64(len(content)),
	}, nil
}

func (s *store) putFunction(deployID, name, digest string, content []byte) (*api.DeployFunction, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	d, ok := s.deploys[deployID]
	if !ok {
		return nil, ErrDeployNotFound
	}
	s.advance(d, s.now())
	if err := s.uploadable(d); err != nil {
		return nil, err
	}

	expected, ok := d.functions[name]
	if !ok {
		return nil, fmt.Errorf("function %q %w", name, ErrNotRequired)
	}
	if len(digest) > 0 && digest != expected {
		return nil, &digestMismatchError{path: name, expected: expected, actual: digest}
	}

	s.site(d.SiteID).functions[expected] = content
	delete(d.pendingFunctions, name)
	d.State = api.StateUploading
	s.advance(d, s.now())

	return &api.DeployFunction{
		ID:   uuid.NewString(),
		Name: name,
		SHA:  expected,
	}, nil
}

func (s *store) live(siteID string) map[string]string {
	s.lock.Lock()
	defer s.lock.Unlock()

	st, ok := s.sites[siteID]
	if !ok {
		return nil
	}
	return st.live
}

func (s *store) content(siteID, digest string) ([]byte, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	st, ok := s.sites[siteID]
	if !ok {
		return nil, false
	}
	content, ok := st.blobs[digest]
	return content, ok
}

type digestMismatchError struct {
	path     string
	expected string
	actual   string
}

func (e *digestMismatchError) Error() string {
	return fmt.Sprintf("content of %q has digest %s, manifest says %s", e.path, e.actual, e.expected)
}
