package registry

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"flashmvp/internal/utils"
)

// Feature is one vertical slice of the compute backend. Each feature
// declares its own routes; the registry only mounts them under the
// shared /api prefix.
type Feature interface {
	// Name identifies the feature in logs and validation errors.
	Name() string

	// Prefix is the path segment under /api the feature owns. An
	// empty prefix mounts the feature's routes at the /api root.
	Prefix() string

	// Mount registers the feature's routes on a router already scoped
	// to /api/<prefix>.
	Mount(r *mux.Router)
}

// Registry mounts an enumerated feature list onto one router. The list
// is validated up front: a misregistered feature is a startup error,
// not a 404 discovered in production.
type Registry struct {
	router   *mux.Router
	features []Feature
	logger   *utils.Logger
}

// New validates and mounts the given features.
func New(features []Feature, logger *utils.Logger) (*Registry, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("no features registered")
	}

	seenPrefix := make(map[string]string, len(features))
	seenName := make(map[string]bool, len(features))
	for i, f := range features {
		if f == nil {
			return nil, fmt.Errorf("feature at index %d is nil", i)
		}
		name := f.Name()
		if name == "" {
			return nil, fmt.Errorf("feature at index %d has an empty name", i)
		}
		if seenName[name] {
			return nil, fmt.Errorf("feature %q registered twice", name)
		}
		seenName[name] = true
		if owner, ok := seenPrefix[f.Prefix()]; ok {
			return nil, fmt.Errorf("feature %q claims prefix %q already owned by %q", name, f.Prefix(), owner)
		}
		seenPrefix[f.Prefix()] = name
	}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	for _, f := range features {
		sub := api
		if f.Prefix() != "" {
			sub = api.PathPrefix("/" + f.Prefix()).Subrouter()
		}
		f.Mount(sub)
		logger.Info("feature mounted", "feature", f.Name(), "prefix", "/api/"+f.Prefix())
	}

	return &Registry{router: router, features: features, logger: logger}, nil
}

// Features returns the mounted features in registration order.
func (reg *Registry) Features() []Feature {
	return reg.features
}

// Handler wraps the router with CORS for the given origins. The
// gateway origin must always be in the list or the shell's browser
// calls fail preflight.
func (reg *Registry) Handler(allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(reg.router)
}

// Router exposes the bare router for tests and for mounting non-API
// endpoints in main.
func (reg *Registry) Router() *mux.Router {
	return reg.router
}
