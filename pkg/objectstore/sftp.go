package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// SFTPConfig configures an SFTP-backed container.
type SFTPConfig struct {
	// Host is the remote host, with optional ":port" (default 22).
	Host string

	// User is the SSH login user.
	User string

	// PrivateKeyPath is the path to the PEM-encoded private key.
	PrivateKeyPath string

	// RemoteRoot is the remote directory objects are written under.
	RemoteRoot string

	// BaseURL is the public URI the container is served from.
	BaseURL string

	// HostKeyCallback verifies the remote host key. When nil, the store
	// refuses to connect rather than silently trusting any key.
	HostKeyCallback ssh.HostKeyCallback

	// DialTimeout bounds connection establishment. Defaults to 30s.
	DialTimeout time.Duration
}

// Validate checks the configuration.
func (c *SFTPConfig) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("sftp store: host is required")
	case c.User == "":
		return fmt.Errorf("sftp store: user is required")
	case c.PrivateKeyPath == "":
		return fmt.Errorf("sftp store: private key path is required")
	case c.RemoteRoot == "":
		return fmt.Errorf("sftp store: remote root is required")
	case c.HostKeyCallback == nil:
		return fmt.Errorf("sftp store: host key callback is required")
	}
	return nil
}

// SFTP is an object container backed by a directory on a remote host reached
// over SSH. Content types are recorded in a JSON sidecar next to each object
// since SFTP itself carries no object metadata. It does not implement Signer.
type SFTP struct {
	config SFTPConfig
	log    zerolog.Logger

	mu     sync.Mutex
	client *sftp.Client
	conn   *ssh.Client
}

// NewSFTP creates an SFTP-backed store. The connection is established lazily
// on the first Put.
func NewSFTP(config SFTPConfig, log zerolog.Logger) (*SFTP, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 30 * time.Second
	}
	return &SFTP{
		config: config,
		log:    log.With().Str("component", "sftp-store").Str("host", config.Host).Logger(),
	}, nil
}

// connect dials the host and opens the SFTP subsystem. Callers hold s.mu.
func (s *SFTP) connect(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	keyBytes, err := os.ReadFile(s.config.PrivateKeyPath)
	if err != nil {
		return fmt.Errorf("sftp store: reading private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return fmt.Errorf("sftp store: parsing private key: %w", err)
	}

	address := s.config.Host
	if !strings.Contains(address, ":") {
		address += ":22"
	}

	clientConfig := &ssh.ClientConfig{
		User:            s.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: s.config.HostKeyCallback,
		Timeout:         s.config.DialTimeout,
	}

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		conn, derr := ssh.Dial("tcp", address, clientConfig)
		if derr != nil {
			errChan <- derr
			return
		}
		connChan <- conn
	}()

	var conn *ssh.Client
	select {
	case <-ctx.Done():
		return ctx.Err()
	case derr := <-errChan:
		return fmt.Errorf("sftp store: dialing %s: %w", address, derr)
	case conn = <-connChan:
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("sftp store: opening sftp subsystem: %w", err)
	}

	s.conn = conn
	s.client = client
	s.log.Debug().Msg("connected")
	return nil
}

// Put writes the object and its metadata sidecar, creating parent directories
// as needed. Re-uploading the same name overwrites identically.
func (s *SFTP) Put(ctx context.Context, name string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		return err
	}

	remotePath := path.Join(s.config.RemoteRoot, name)
	if err := s.client.MkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("sftp store: creating %s: %w", path.Dir(remotePath), err)
	}

	start := time.Now()
	f, err := s.client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp store: creating %s: %w", remotePath, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("sftp store: writing %s: %w", remotePath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("sftp store: closing %s: %w", remotePath, err)
	}

	meta, _ := json.Marshal(map[string]string{"content_type": contentType})
	mf, err := s.client.Create(remotePath + ".meta")
	if err != nil {
		return fmt.Errorf("sftp store: creating metadata for %s: %w", remotePath, err)
	}
	if _, err := mf.Write(meta); err != nil {
		_ = mf.Close()
		return fmt.Errorf("sftp store: writing metadata for %s: %w", remotePath, err)
	}
	if err := mf.Close(); err != nil {
		return fmt.Errorf("sftp store: closing metadata for %s: %w", remotePath, err)
	}

	s.log.Info().
		Str("object", name).
		Int("bytes", len(data)).
		Str("content_type", contentType).
		Dur("duration", time.Since(start)).
		Msg("object uploaded")
	return nil
}

// URL returns the public URI of the named object.
func (s *SFTP) URL(name string) string {
	return strings.TrimRight(s.config.BaseURL, "/") + "/" + name
}

// Close shuts down the SFTP session and the SSH connection.
func (s *SFTP) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			firstErr = err
		}
		s.client = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.conn = nil
	}
	return firstErr
}
