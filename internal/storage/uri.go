package storage

import (
	"fmt"
	"strings"
)

// Scheme is the routing key spec.md §6 defines for file URIs.
type Scheme int

const (
	SchemeLocal Scheme = iota
	SchemeS3
	SchemeGCS
	SchemeAzure
	SchemeHTTPS
)

// ErrAdapterNotConfigured is returned by Router.Resolve for schemes whose
// adapter is the explicit non-goal from spec.md §1: the routing contract is
// exercised, but no S3/GCS/Azure/HTTPS adapter ships with this repo.
type ErrAdapterNotConfigured struct {
	Scheme Scheme
}

func (e *ErrAdapterNotConfigured) Error() string {
	return fmt.Sprintf("no storage adapter configured for scheme %v", e.Scheme)
}

// SchemeOf classifies a location URI per spec.md §6: s3://, gs://, azure://,
// https:// route to the cloud adapter family; everything else is a local
// filesystem path.
func SchemeOf(location string) Scheme {
	switch {
	case strings.HasPrefix(location, "s3://"):
		return SchemeS3
	case strings.HasPrefix(location, "gs://"):
		return SchemeGCS
	case strings.HasPrefix(location, "azure://"):
		return SchemeAzure
	case strings.HasPrefix(location, "https://"):
		return SchemeHTTPS
	default:
		return SchemeLocal
	}
}

// Router dispatches a location to the Adapter registered for its scheme.
type Router struct {
	adapters map[Scheme]Adapter
}

// NewRouter builds a Router. Pass the Local adapter under SchemeLocal; other
// schemes may be left unset, in which case Resolve returns
// ErrAdapterNotConfigured.
func NewRouter(adapters map[Scheme]Adapter) *Router {
	return &Router{adapters: adapters}
}

// Resolve returns the Adapter responsible for location.
func (r *Router) Resolve(location string) (Adapter, error) {
	scheme := SchemeOf(location)
	a, ok := r.adapters[scheme]
	if !ok {
		return nil, &ErrAdapterNotConfigured{Scheme: scheme}
	}
	return a, nil
}
