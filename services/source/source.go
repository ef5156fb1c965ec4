package source

import (
	"context"
	"net/http"
	"sync"

	"github.com/spf13/afero"

	"mangavault/models"
)

// Source is a capability-tagged handle for a catalog source. The interface is
// closed: the only implementations are Remote, Local, and Stub, so callers
// dispatch with an exhaustive type switch.
type Source interface {
	ID() int64
	Name() string

	capability()
}

// DetailsSource is implemented by sources that can fetch title details
// (Remote and Local, not Stub).
type DetailsSource interface {
	Source
	FetchDetails(ctx context.Context, seed models.TitleRecord) (models.TitleRecord, error)
}

// RemoteAPI is the connector behind a Remote source. Connectors are
// registered at startup; how they are discovered or loaded is outside this
// package.
type RemoteAPI interface {
	FetchDetails(ctx context.Context, seed models.TitleRecord) (models.TitleRecord, error)
	// TitleURL derives the canonical web URL for a title record.
	TitleURL(rec models.TitleRecord) (string, error)
}

// Remote is a network-backed catalog source.
type Remote struct {
	id      int64
	name    string
	client  *http.Client
	headers http.Header
	api     RemoteAPI
}

func NewRemote(id int64, name string, client *http.Client, headers http.Header, api RemoteAPI) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{id: id, name: name, client: client, headers: headers, api: api}
}

func (r *Remote) ID() int64            { return r.id }
func (r *Remote) Name() string         { return r.name }
func (r *Remote) Client() *http.Client { return r.client }
func (r *Remote) Headers() http.Header { return r.headers }
func (r *Remote) capability()          {}

func (r *Remote) FetchDetails(ctx context.Context, seed models.TitleRecord) (models.TitleRecord, error) {
	return r.api.FetchDetails(ctx, seed)
}

// TitleURL derives the canonical web URL for a title. Failures are expected
// for connectors that cannot build one; callers treat them as best-effort.
func (r *Remote) TitleURL(rec models.TitleRecord) (string, error) {
	return r.api.TitleURL(rec)
}

// Local is a filesystem-backed source. Title details and thumbnails are read
// straight from disk.
type Local struct {
	id   int64
	name string
	fs   afero.Fs
}

func NewLocal(id int64, name string, fs afero.Fs) *Local {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Local{id: id, name: name, fs: fs}
}

func (l *Local) ID() int64    { return l.id }
func (l *Local) Name() string { return l.name }
func (l *Local) Fs() afero.Fs { return l.fs }
func (l *Local) capability()  {}

// FetchDetails for a local source has nothing upstream to ask; the seed is
// returned unchanged and the caller's merge keeps the stored fields.
func (l *Local) FetchDetails(_ context.Context, seed models.TitleRecord) (models.TitleRecord, error) {
	return seed, nil
}

// Stub stands in for a source whose connector is not currently available.
// Cached rows stay usable and thumbnail fetches fall back to a plain client.
type Stub struct {
	id int64
}

func NewStub(id int64) *Stub { return &Stub{id: id} }

func (s *Stub) ID() int64    { return s.id }
func (s *Stub) Name() string { return "stub" }
func (s *Stub) capability()  {}

// Gateway resolves a stored source reference to a capability handle.
type Gateway interface {
	// Resolve returns nil when no connector is registered for the ref.
	Resolve(sourceRef int64) Source
	// ResolveOrStub never returns nil; unresolved refs get a Stub.
	ResolveOrStub(sourceRef int64) Source
}

// Registry is the Gateway used by the server: sources are registered at
// startup and looked up by ref.
type Registry struct {
	mu      sync.RWMutex
	sources map[int64]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[int64]Source)}
}

func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.ID()] = s
}

func (r *Registry) Resolve(sourceRef int64) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[sourceRef]
}

func (r *Registry) ResolveOrStub(sourceRef int64) Source {
	if s := r.Resolve(sourceRef); s != nil {
		return s
	}
	return NewStub(sourceRef)
}

var (
	_ DetailsSource = (*Remote)(nil)
	_ DetailsSource = (*Local)(nil)
	_ Source        = (*Stub)(nil)
	_ Gateway       = (*Registry)(nil)
)
