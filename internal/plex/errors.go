package plex

import "errors"

// Sentinel errors for plex construction and validation.
var (
	// ErrEmpty is returned when a plex has no mols.
	ErrEmpty = errors.New("plex has no mols")

	// ErrDisconnected is returned when a plex is not a single connected complex.
	ErrDisconnected = errors.New("plex is not connected")

	// ErrMolRange is returned for a mol index outside the plex.
	ErrMolRange = errors.New("mol index out of range")

	// ErrSiteRange is returned for a binding-site index the mol type does not have.
	ErrSiteRange = errors.New("binding site index out of range")

	// ErrSiteBound is returned when a site would take part in two bindings.
	ErrSiteBound = errors.New("binding site already bound")
)
