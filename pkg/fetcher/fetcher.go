// Package fetcher resolves an endpoint and method to a handler by convention.
//
// An endpoint is split on "/" into alternating resource names and path
// parameters: "products/10/skus" has resources products and skus and the single
// path parameter "10". The resources joined by "/" plus the effective verb form
// the handler path, e.g. "api/products/skus/list". Handlers are registered for
// that path at startup and resolved with a map lookup.
package fetcher

import (
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/morezero/api-dispatcher/pkg/api"
	"github.com/morezero/api-dispatcher/pkg/apierror"
)

const (
	logPrefix = "fetcher:fetcher"

	defaultFolder = "api"

	// VerbList is the effective verb of a get on a collection path.
	VerbList = "list"
)

// Factory builds a new handler for each dispatch.
type Factory func() api.Handler

// Config holds fetcher configuration. It is copied at construction and never
// changes afterwards.
type Config struct {
	// Root is the base directory handler paths are computed from.
	Root string
	// PathPrefix is inserted between Root and Folder (MS_PATH).
	PathPrefix string
	// Folder is the handlers folder name. Defaults to "api".
	Folder string
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{Folder: defaultFolder}
}

// Fetcher maps (endpoint, method) to handlers. It is safe for concurrent use.
type Fetcher struct {
	config Config

	mu     sync.RWMutex
	routes map[string]Factory

	// cache holds resolved factories by computed file path.
	cache sync.Map
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Folder == "" {
		cfg.Folder = defaultFolder
	}
	return &Fetcher{config: cfg, routes: make(map[string]Factory)}
}

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	Handler        api.Handler
	FilePath       string
	PathParameters []string
}

// BasePath returns the directory all handler paths live under.
func (f *Fetcher) BasePath() string {
	return path.Join(f.config.Root, f.config.PathPrefix, f.config.Folder)
}

// Register binds a factory to a resource path (resource names only, e.g.
// "products/skus") and verb. Registering the same pair twice replaces the
// previous factory.
func (f *Fetcher) Register(resource, verb string, factory Factory) {
	key := path.Join(f.BasePath(), strings.ToLower(strings.Trim(resource, "/")), strings.ToLower(verb))

	f.mu.Lock()
	f.routes[key] = factory
	f.mu.Unlock()
	f.cache.Delete(key)

	slog.Debug(fmt.Sprintf("%s - Registered %s", logPrefix, key))
}

// Routes returns every registered handler path, sorted.
func (f *Fetcher) Routes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.routes))
	for k := range f.routes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FilePath returns the handler path for an endpoint and method.
func (f *Fetcher) FilePath(endpoint, method string) string {
	parts := segments(endpoint)
	verb := EffectiveVerb(len(parts), method)

	resources := make([]string, 0, (len(parts)+1)/2)
	for i := 0; i < len(parts); i += 2 {
		resources = append(resources, parts[i])
	}
	return path.Join(f.BasePath(), strings.Join(resources, "/"), verb)
}

// Resolve returns a new handler for the endpoint and method.
func (f *Fetcher) Resolve(endpoint, method string) (*Resolution, error) {
	filePath := f.FilePath(endpoint, method)

	factory, err := f.lookup(filePath)
	if err != nil {
		return nil, err
	}

	h, err := instantiate(factory, filePath)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		Handler:        h,
		FilePath:       filePath,
		PathParameters: PathParameters(endpoint),
	}, nil
}

func (f *Fetcher) lookup(filePath string) (Factory, error) {
	if cached, ok := f.cache.Load(filePath); ok {
		return cached.(Factory), nil
	}

	f.mu.RLock()
	factory, ok := f.routes[filePath]
	f.mu.RUnlock()
	if !ok || factory == nil {
		return nil, apierror.Newf(apierror.CodeHandlerNotFound, "Invalid API Controller '%s'", filePath)
	}

	f.cache.Store(filePath, factory)
	return factory, nil
}

func instantiate(factory Factory, filePath string) (h api.Handler, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - factory for %s panicked: %v", logPrefix, filePath, r))
			h = nil
			err = apierror.Newf(apierror.CodeInvalidHandler, "API Controller '%s' could not be instantiated", filePath)
		}
	}()

	h = factory()
	if h == nil {
		return nil, apierror.Newf(apierror.CodeInvalidHandler, "API Controller '%s' Method 'process' not found", filePath)
	}
	return h, nil
}

// EffectiveVerb returns the verb used for resolution: a get on a path with an
// odd number of segments is a list.
func EffectiveVerb(segmentCount int, method string) string {
	method = strings.ToLower(method)
	if method == "" {
		method = "get"
	}
	if method == "get" && segmentCount%2 == 1 {
		return VerbList
	}
	return method
}

// PathParameters returns the odd-indexed, lower-cased segments of endpoint.
func PathParameters(endpoint string) []string {
	parts := segments(endpoint)
	params := make([]string, 0, len(parts)/2)
	for i := 1; i < len(parts); i += 2 {
		params = append(params, parts[i])
	}
	return params
}

func segments(endpoint string) []string {
	return strings.Split(strings.ToLower(endpoint), "/")
}
