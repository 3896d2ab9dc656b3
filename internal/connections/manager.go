// Package connections persists saved connection descriptors as YAML files,
// one file per connection, under a configurable directory. Secrets are never
// written: a profile stores the credential reference, and descriptors carry
// that reference until a manager resolves it at connect time.
package connections

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/grokking-vietnam/querybench/internal/engine"
)

const defaultDir = "connections"

var fileNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

// profile is the on-disk YAML shape of one saved connection.
type profile struct {
	ID        string    `yaml:"id"`
	Name      string    `yaml:"name"`
	Engine    string    `yaml:"engine"`
	Host      string    `yaml:"host,omitempty"`
	Port      int       `yaml:"port,omitempty"`
	Database  string    `yaml:"database,omitempty"`
	Username  string    `yaml:"username,omitempty"`
	SecretRef string    `yaml:"secret_ref,omitempty"`
	SSL       bool      `yaml:"ssl,omitempty"`
	RawDSN    string    `yaml:"raw_dsn,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
	LastUsed  time.Time `yaml:"last_used,omitempty"`
}

func (p *profile) descriptor() *engine.ConnectionDescriptor {
	return &engine.ConnectionDescriptor{
		ID:        p.ID,
		Name:      p.Name,
		Engine:    engine.ID(p.Engine),
		Host:      p.Host,
		Port:      p.Port,
		Database:  p.Database,
		Username:  p.Username,
		Secret:    p.SecretRef,
		SSL:       p.SSL,
		RawDSN:    p.RawDSN,
		Status:    engine.StatusDisconnected,
		CreatedAt: p.CreatedAt,
		LastUsed:  p.LastUsed,
	}
}

func fromDescriptor(desc *engine.ConnectionDescriptor) *profile {
	return &profile{
		ID:        desc.ID,
		Name:      desc.Name,
		Engine:    desc.Engine.String(),
		Host:      desc.Host,
		Port:      desc.Port,
		Database:  desc.Database,
		Username:  desc.Username,
		SecretRef: desc.Secret,
		SSL:       desc.SSL,
		RawDSN:    desc.RawDSN,
		CreatedAt: desc.CreatedAt,
		LastUsed:  desc.LastUsed,
	}
}

// Manager discovers and persists connection profiles under a directory.
type Manager struct {
	dir string
}

// NewManager constructs a connection manager using the provided directory.
func NewManager(dir string) *Manager {
	if strings.TrimSpace(dir) == "" {
		dir = defaultDir
	}
	return &Manager{dir: dir}
}

// Directory returns the configured profile directory.
func (m *Manager) Directory() string {
	return m.dir
}

// Save persists the descriptor, assigning an id and creation time when
// missing, and returns the stored copy.
func (m *Manager) Save(desc *engine.ConnectionDescriptor) (*engine.ConnectionDescriptor, error) {
	if desc == nil {
		return nil, fmt.Errorf("connection descriptor cannot be nil")
	}
	if !desc.Engine.Valid() {
		return nil, fmt.Errorf("unknown engine: %q", desc.Engine)
	}
	if strings.TrimSpace(desc.Name) == "" {
		return nil, fmt.Errorf("connection name cannot be empty")
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, err
	}

	stored := *desc
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	data, err := yaml.Marshal(fromDescriptor(&stored))
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(m.path(stored.ID), data, 0o600); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Get resolves a connection id to its descriptor.
func (m *Manager) Get(connectionID string) (*engine.ConnectionDescriptor, error) {
	if strings.TrimSpace(connectionID) == "" {
		return nil, fmt.Errorf("connection id cannot be empty")
	}

	data, err := os.ReadFile(m.path(connectionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("connection not found: %s", connectionID)
		}
		return nil, err
	}

	var p profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse connection %s: %w", connectionID, err)
	}
	return p.descriptor(), nil
}

// List returns all saved descriptors, filtered by engine when provided,
// sorted by name. Unreadable files are skipped.
func (m *Manager) List(engineID engine.ID) ([]*engine.ConnectionDescriptor, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var descs []*engine.ConnectionDescriptor
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			continue
		}
		var p profile
		if err := yaml.Unmarshal(data, &p); err != nil {
			continue
		}
		if engineID != "" && engine.ID(p.Engine) != engineID {
			continue
		}
		descs = append(descs, p.descriptor())
	}

	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs, nil
}

// Touch updates the last-used timestamp of a connection.
func (m *Manager) Touch(connectionID string) error {
	desc, err := m.Get(connectionID)
	if err != nil {
		return err
	}
	desc.LastUsed = time.Now()
	_, err = m.Save(desc)
	return err
}

// Delete removes a saved connection.
func (m *Manager) Delete(connectionID string) error {
	if strings.TrimSpace(connectionID) == "" {
		return fmt.Errorf("connection id cannot be empty")
	}
	path := m.path(connectionID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("connection not found: %s", connectionID)
	}
	return os.Remove(path)
}

func (m *Manager) path(connectionID string) string {
	return filepath.Join(m.dir, sanitizeName(connectionID)+".yaml")
}

func sanitizeName(input string) string {
	cleaned := fileNameSanitizer.ReplaceAllString(input, "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return "connection"
	}
	return cleaned
}

// NoopDecrypt treats the credential reference as the secret itself. Useful
// for local development and tests; production wiring supplies a real
// decryptor.
func NoopDecrypt(secretRef string) (string, error) {
	return secretRef, nil
}
