package remote

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/odvcencio/grit/pkg/object"
	"github.com/odvcencio/grit/pkg/repo"
)

// ServerConfig is the TOML configuration for the bundle server.
type ServerConfig struct {
	Addr                  string `toml:"addr"`
	RepoPath              string `toml:"repo_path"`
	ReadOnly              bool   `toml:"read_only"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	MaxBundleBytes        int64  `toml:"max_bundle_bytes"`
}

// LoadServerConfig reads a TOML config file and fills in defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load server config %q: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *ServerConfig) applyDefaults() {
	if cfg.Addr == "" {
		cfg.Addr = ":8417"
	}
	if cfg.RepoPath == "" {
		cfg.RepoPath = "."
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = 60
	}
	if cfg.MaxBundleBytes <= 0 {
		cfg.MaxBundleBytes = responseLimitBundle
	}
}

// Server serves a repository over the bundle protocol: GET /repo.bundle
// downloads a self-contained bundle of every ref, POST /repo.bundle
// applies a push. Pushes are serialized; a push either updates every ref
// it names or none of them, though uploaded objects are kept either way.
type Server struct {
	repo     *repo.Repo
	readOnly bool
	maxBytes int64

	mu sync.Mutex // serializes pushes
}

// NewServer wraps an opened repository.
func NewServer(r *repo.Repo, cfg *ServerConfig) *Server {
	if cfg == nil {
		cfg = &ServerConfig{}
	}
	cfgCopy := *cfg
	cfgCopy.applyDefaults()
	return &Server{
		repo:     r,
		readOnly: cfgCopy.ReadOnly,
		maxBytes: cfgCopy.MaxBundleBytes,
	}
}

// ListenAndServe runs an HTTP server with request deadlines from cfg.
func ListenAndServe(cfg *ServerConfig) error {
	cfg.applyDefaults()
	r, err := repo.Open(cfg.RepoPath)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewServer(r, cfg),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	return srv.ListenAndServe()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != bundlePathSuffix {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleFetch(w, r)
	case http.MethodPost:
		s.handlePush(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	refs, err := s.currentRefs()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(refs) == 0 {
		http.Error(w, "repository has no refs", http.StatusNotFound)
		return
	}

	b, err := CreateBundle(s.repo.Store, refs, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if branch, err := s.repo.CurrentBranch(); err == nil && branch != "" {
		if _, ok := refs["refs/heads/"+branch]; ok {
			b.Capabilities = []string{ObjectFormatCapability, defaultBranchCapabilityPrefix + branch}
		}
	}
	raw, err := EncodeBundleToBytes(b)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", bundleContentType)
	w.Header().Set(headerProtocol, ProtocolVersion)
	if isZstdEncoded(r.Header.Get("Accept-Encoding")) {
		compressed, err := compressZstd(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Encoding", "zstd")
		raw = compressed
	}
	_, _ = w.Write(raw)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if s.readOnly {
		http.Error(w, "repository is read-only", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if isZstdEncoded(r.Header.Get("Content-Encoding")) {
		body, err = decompressZstd(body)
		if err != nil {
			http.Error(w, fmt.Sprintf("decompress bundle: %v", err), http.StatusBadRequest)
			return
		}
	}
	b, err := DecodeBundleBytes(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	report := s.applyPush(b)
	s.mu.Unlock()

	status := http.StatusOK
	if !report.OK {
		status = http.StatusConflict
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_ = EncodePushReport(w, report)
}

// applyPush stores the bundle's objects, then verifies every ref update
// is a fast-forward before applying any of them. Rejection keeps the
// uploaded objects; the next push will not re-send them.
func (s *Server) applyPush(b *Bundle) *PushReport {
	report := &PushReport{}

	tips, err := ApplyBundle(s.repo.Store, b)
	if err != nil {
		for _, name := range sortedRefNames(b.Refs) {
			report.Refs = append(report.Refs, RefStatus{Name: name, Reason: err.Error()})
		}
		return report
	}

	names := sortedRefNames(tips)

	type plannedUpdate struct {
		name     string
		old, new object.Hash
	}
	var plan []plannedUpdate
	var rejected []RefStatus
	for _, name := range names {
		newHash := tips[name]
		oldHash, err := s.repo.ResolveRef(name)
		if err != nil && !isAbsentRef(err) {
			rejected = append(rejected, RefStatus{Name: name, Reason: err.Error()})
			continue
		}
		if oldHash != "" && oldHash != newHash {
			ff, ancErr := s.repo.IsAncestor(oldHash, newHash)
			if ancErr != nil {
				rejected = append(rejected, RefStatus{Name: name, Reason: ancErr.Error()})
				continue
			}
			if !ff {
				rejected = append(rejected, RefStatus{Name: name, Reason: ErrNonFastForward.Error()})
				continue
			}
		}
		plan = append(plan, plannedUpdate{name: name, old: oldHash, new: newHash})
	}

	if len(rejected) > 0 {
		// Atomic push: one bad ref rejects them all.
		reasons := make(map[string]string, len(rejected))
		for _, rs := range rejected {
			reasons[rs.Name] = rs.Reason
		}
		for _, name := range names {
			reason, bad := reasons[name]
			if !bad {
				reason = "transaction aborted"
			}
			report.Refs = append(report.Refs, RefStatus{Name: name, Reason: reason})
		}
		return report
	}

	for i, u := range plan {
		if err := s.repo.UpdateRefCAS(u.name, u.new, u.old); err != nil {
			// A ref moved under us mid-apply. Stop here; refs applied so
			// far stay (they were fast-forwards), the rest are rejected.
			report.Refs = append(report.Refs, RefStatus{Name: u.name, Reason: err.Error()})
			for _, rest := range plan[i+1:] {
				report.Refs = append(report.Refs, RefStatus{Name: rest.name, Reason: "transaction aborted"})
			}
			return report
		}
		report.Refs = append(report.Refs, RefStatus{Name: u.name, OK: true})
	}
	report.OK = true
	return report
}

// currentRefs resolves every branch and tag in the served repository.
func (s *Server) currentRefs() (map[string]object.Hash, error) {
	return s.repo.ListRefs("refs/")
}

func sortedRefNames(refs map[string]object.Hash) []string {
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isAbsentRef treats a missing or unborn ref as "create".
func isAbsentRef(err error) bool {
	return errors.Is(err, repo.ErrUnborn) || errors.Is(err, os.ErrNotExist)
}
