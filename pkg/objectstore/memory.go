package objectstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Object is one stored object with its metadata.
type Object struct {
	// Data is the raw object content.
	Data []byte

	// ContentType is the MIME content type recorded at upload time.
	ContentType string

	// UploadedAt is when the object was written.
	UploadedAt time.Time
}

// Memory is an in-process object container. Previews and tests use it as the
// stand-in for a real storage account; it also mints HMAC-SHA256 capability
// tokens so signed-URL construction is exercised end to end.
type Memory struct {
	mu      sync.RWMutex
	baseURL string
	key     []byte
	objects map[string]Object
}

// NewMemory creates an in-memory store. baseURL is the container URI objects
// are addressed under (no trailing slash); key is the signing key, which may
// be nil to disable signing.
func NewMemory(baseURL string, key []byte) *Memory {
	return &Memory{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		objects: make(map[string]Object),
	}
}

// Put stores the object, overwriting any previous version.
func (m *Memory) Put(_ context.Context, name string, data []byte, contentType string) error {
	if name == "" {
		return fmt.Errorf("objectstore: empty object name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[name] = Object{Data: buf, ContentType: contentType, UploadedAt: time.Now()}
	return nil
}

// URL returns the base object URI.
func (m *Memory) URL(name string) string {
	return m.baseURL + "/" + name
}

// SignedURL mints a read-only URL valid until expiry. The token carries the
// expiry and an HMAC-SHA256 over the object name and expiry, so it is
// verifiable without shared state.
func (m *Memory) SignedURL(name string, expiry time.Time) (string, error) {
	if len(m.key) == 0 {
		return "", ErrSigningUnsupported
	}
	token := signToken(m.key, name, expiry)
	return m.URL(name) + "?" + token, nil
}

// Get returns the stored object. Tests use it to verify uploads.
func (m *Memory) Get(name string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[name]
	return obj, ok
}

// Names returns the names of all stored objects.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}
	return names
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// signToken builds the query-string capability token: the expiry timestamp
// and the MAC over "name\nexpiry".
func signToken(key []byte, name string, expiry time.Time) string {
	se := expiry.UTC().Format(time.RFC3339)
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s\n%s", name, se)
	sig := hex.EncodeToString(mac.Sum(nil))
	return "se=" + url.QueryEscape(se) + "&sig=" + sig
}

// VerifyToken checks a capability token against the key and object name and
// returns the embedded expiry.
func VerifyToken(key []byte, name, token string) (time.Time, error) {
	q, err := url.ParseQuery(token)
	if err != nil {
		return time.Time{}, fmt.Errorf("objectstore: malformed token: %w", err)
	}
	se := q.Get("se")
	if se == "" {
		return time.Time{}, fmt.Errorf("objectstore: token missing expiry")
	}
	expiry, err := time.Parse(time.RFC3339, se)
	if err != nil {
		return time.Time{}, fmt.Errorf("objectstore: bad token expiry: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s\n%s", name, expiry.UTC().Format(time.RFC3339))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(q.Get("sig"))) {
		return time.Time{}, fmt.Errorf("objectstore: token signature mismatch")
	}
	return expiry, nil
}
