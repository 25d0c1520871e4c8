package executor

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	binDir = ".bin"

	// AWSConfigFile is the sandbox-relative shared config file handed to terraform
	AWSConfigFile = ".aws/config"
)

// Sandbox is a scratch directory owned by a single invocation
type Sandbox struct {
	dir string
}

// NewSandbox creates a fresh directory under root (os.TempDir() when empty)
// whose name starts with requestID.
func NewSandbox(root, requestID string) (*Sandbox, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sandbox root %s: %w", root, err)
		}
	}

	dir, err := os.MkdirTemp(root, requestID+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox for %s: %w", requestID, err)
	}
	return &Sandbox{dir: dir}, nil
}

// Dir returns the sandbox root
func (s *Sandbox) Dir() string {
	return s.dir
}

// Path joins name onto the sandbox root
func (s *Sandbox) Path(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}

// WriteFile writes data to a sandbox-relative path, creating parent directories
func (s *Sandbox) WriteFile(name string, data []byte) error {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return fmt.Errorf("refusing to write %q outside the sandbox", name)
	}

	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// WriteFiles writes each name/content pair
func (s *Sandbox) WriteFiles(files map[string]string) error {
	for name, content := range files {
		if err := s.WriteFile(name, []byte(content)); err != nil {
			return err
		}
	}
	return nil
}

// Close removes the sandbox and everything in it. Safe to call more than once.
func (s *Sandbox) Close() error {
	if s == nil || s.dir == "" {
		return nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("failed to remove sandbox %s: %w", s.dir, err)
	}
	return nil
}

// AWSConfig renders the shared config file pinning the default profile's region
func AWSConfig(region string) string {
	return fmt.Sprintf("[default]\nregion = %s\n", region)
}
