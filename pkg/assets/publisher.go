// Package assets publishes a local file tree into an object container:
// depth-first enumeration, per-file content type inference, upload with the
// content type as object metadata, and optionally a time-bounded signed read
// URL per object.
package assets

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openhoist/openhoist/pkg/engine"
	"github.com/openhoist/openhoist/pkg/objectstore"
)

// DefaultSignDuration is the signed-URL validity applied when none is
// configured.
const DefaultSignDuration = 2 * time.Hour

// Asset is one file read from the local tree: its container-relative name in
// forward-slash form, its inferred content type, and its content.
type Asset struct {
	// Name is the object name: the file path relative to the publish root,
	// normalized to forward slashes. Unique within one publish operation.
	Name string

	// ContentType is the inferred MIME content type.
	ContentType string

	// Data is the file content, after any rewrite hook ran.
	Data []byte
}

// PublishedObject is the result of uploading one asset.
type PublishedObject struct {
	// Name is the object name.
	Name string `json:"name"`

	// ContentType is the MIME type the object was uploaded with.
	ContentType string `json:"content_type"`

	// Size is the uploaded size in bytes.
	Size int `json:"size"`

	// SignedURL is the time-bounded read URL. Empty when signing was not
	// requested or the run was a preview.
	SignedURL string `json:"signed_url,omitempty"`

	// ExpiresAt is the signed-URL expiry. Zero when SignedURL is empty.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Options configures one publish operation.
type Options struct {
	// Sign requests a signed read URL per object. The store must implement
	// objectstore.Signer.
	Sign bool

	// SignFor is the signed-URL validity. Zero means DefaultSignDuration.
	// Expiry is upload time plus this duration, active immediately.
	SignFor time.Duration

	// Rewrite, when set, transforms an asset's content before upload. It is a
	// pure transformation and runs in preview too.
	Rewrite func(name string, data []byte) ([]byte, error)
}

// Publisher uploads a local file tree into an object container. Uploads and
// signing are side effects and are routed through the effect runner, so a
// preview publish enumerates and transforms but mutates nothing.
//
// Publication is fail-fast: the first unreadable file or failed upload aborts
// the operation, and uploads that already completed are not rolled back.
// Re-running converges because uploads overwrite identically.
type Publisher struct {
	store   objectstore.Store
	effects *engine.EffectRunner
	log     zerolog.Logger
	tracer  trace.Tracer
	obs     Observer
}

// Observer receives per-object publish notifications. The telemetry metrics
// collector implements it; it may be nil.
type Observer interface {
	ObjectPublished(name string, size int)
}

// NewPublisher creates a publisher writing into store under the given effect
// gate.
func NewPublisher(store objectstore.Store, effects *engine.EffectRunner, log zerolog.Logger, tracer trace.Tracer, obs Observer) *Publisher {
	return &Publisher{
		store:   store,
		effects: effects,
		log:     log.With().Str("component", "assets").Logger(),
		tracer:  tracer,
		obs:     obs,
	}
}

// Publish enumerates root depth-first and uploads every regular file. An
// empty directory yields an empty result and no error. Directories reached
// through symbolic links are not descended into, which bounds the recursion.
func (p *Publisher) Publish(ctx context.Context, root string, opts Options) ([]PublishedObject, error) {
	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "assets.publish",
			trace.WithAttributes(attribute.String("assets.root", root)))
		defer span.End()
	}

	list, err := p.enumerate(root, opts.Rewrite)
	if err != nil {
		return nil, err
	}

	signFor := opts.SignFor
	if signFor == 0 {
		signFor = DefaultSignDuration
	}

	var signer objectstore.Signer
	if opts.Sign {
		var ok bool
		if signer, ok = p.store.(objectstore.Signer); !ok {
			return nil, engine.NewIOError("sign", objectstore.ErrSigningUnsupported)
		}
	}

	published := make([]PublishedObject, 0, len(list))
	for _, asset := range list {
		obj := PublishedObject{
			Name:        asset.Name,
			ContentType: asset.ContentType,
			Size:        len(asset.Data),
		}

		asset := asset
		ran, err := p.effects.Run(ctx, "publish "+asset.Name, func(ctx context.Context) error {
			if err := p.store.Put(ctx, asset.Name, asset.Data, asset.ContentType); err != nil {
				return err
			}
			if signer != nil {
				expiry := time.Now().Add(signFor)
				signed, err := signer.SignedURL(asset.Name, expiry)
				if err != nil {
					return err
				}
				obj.SignedURL = signed
				obj.ExpiresAt = expiry
			}
			return nil
		})
		if err != nil {
			// Fail fast. Earlier uploads in this batch stay in place.
			return nil, engine.NewIOError("publish "+asset.Name, err)
		}
		if ran {
			if p.obs != nil {
				p.obs.ObjectPublished(asset.Name, len(asset.Data))
			}
			p.log.Info().
				Str("object", asset.Name).
				Str("content_type", asset.ContentType).
				Int("bytes", len(asset.Data)).
				Msg("asset published")
		}
		published = append(published, obj)
	}

	return published, nil
}

// enumerate walks root depth-first and reads every regular file. The walk
// does not follow symbolic links to directories.
func (p *Publisher) enumerate(root string, rewrite func(string, []byte) ([]byte, error)) ([]Asset, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, engine.NewIOError("enumerate", fmt.Errorf("asset root %s: %w", root, err))
	}
	if !info.IsDir() {
		return nil, engine.NewIOError("enumerate", fmt.Errorf("asset root %s is not a directory", root))
	}

	var list []Asset
	seen := make(map[string]struct{})

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate object name %q", name)
		}
		seen[name] = struct{}{}

		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if rewrite != nil {
			if data, err = rewrite(name, data); err != nil {
				return fmt.Errorf("rewriting %s: %w", name, err)
			}
		}

		list = append(list, Asset{
			Name:        name,
			ContentType: ContentTypeFor(name),
			Data:        data,
		})
		return nil
	})
	if err != nil {
		return nil, engine.NewIOError("enumerate", err)
	}

	return list, nil
}
