// Package objectstore provides the object container abstraction the asset
// publisher uploads into: an in-memory store used by previews and tests, and
// an SFTP-backed store for remote containers reached over SSH.
package objectstore

import (
	"context"
	"errors"
	"time"
)

// ErrSigningUnsupported is returned by stores that cannot mint signed URLs.
var ErrSigningUnsupported = errors.New("objectstore: store does not support signed URLs")

// Store is a writable object container. Object names are POSIX-style relative
// paths; writing the same name twice overwrites identically, which keeps
// re-publication after an interrupted run convergent.
type Store interface {
	// Put uploads the raw bytes under name with the content type attached as
	// object metadata.
	Put(ctx context.Context, name string, data []byte, contentType string) error

	// URL returns the base (unsigned) URI of the named object.
	URL(name string) string
}

// Signer mints time-bounded read-only access tokens. The signed URL is the
// base object URI joined with the token by a "?". A store that does not
// implement Signer cannot serve signed publications.
type Signer interface {
	// SignedURL returns a read-only URL valid until expiry, active
	// immediately.
	SignedURL(name string, expiry time.Time) (string, error)
}
