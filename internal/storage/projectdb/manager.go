package projectdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/raysh454/sitescore/internal/logging"
)

// DBFileName is the database file inside each domain directory.
const DBFileName = "project.db"

// Manager hands out one open Store per sanitized domain. Stores are opened on
// first use and stay open until Close or CloseAll.
type Manager struct {
	root   string
	logger logging.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewManager returns a Manager rooted at dataDir; databases live at
// dataDir/projects/<domain>/project.db.
func NewManager(dataDir string, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		root:   filepath.Clean(dataDir),
		logger: logger,
		stores: make(map[string]*Store),
	}
}

// Path returns the database path for domain without opening it.
func (m *Manager) Path(domain string) string {
	return filepath.Join(DomainDir(m.root, domain), DBFileName)
}

// Exists reports whether a database file for domain is on disk. domain may
// be any spelling ExtractDomain accepts ("www.Example.com", a full URL).
func (m *Manager) Exists(domain string) bool {
	if d, err := ExtractDomain(domain); err == nil {
		domain = d
	}
	info, err := os.Stat(m.Path(domain))
	return err == nil && !info.IsDir()
}

// ForURL opens the store for the domain of rawURL.
func (m *Manager) ForURL(rawURL string) (*Store, error) {
	domain, err := ExtractDomain(rawURL)
	if err != nil {
		return nil, fmt.Errorf("extract domain: %w", err)
	}
	return m.ForDomain(domain)
}

// ForDomain returns the open store for domain, opening it if needed.
func (m *Manager) ForDomain(domain string) (*Store, error) {
	key := SanitizeDomain(domain)

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[key]; ok {
		return s, nil
	}
	s, err := Open(m.Path(domain), domain, m.logger)
	if err != nil {
		return nil, err
	}
	m.stores[key] = s
	return s, nil
}

// Project is a shortcut for ForDomain followed by GetOrCreateProject.
func (m *Manager) Project(ctx context.Context, domain string) (*Store, *Project, error) {
	s, err := m.ForDomain(domain)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.GetOrCreateProject(ctx, domain)
	if err != nil {
		return nil, nil, err
	}
	return s, p, nil
}

// Close closes the store for domain if it is open.
func (m *Manager) Close(domain string) error {
	key := SanitizeDomain(domain)

	m.mu.Lock()
	s, ok := m.stores[key]
	delete(m.stores, key)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return s.Close()
}

// CloseAll closes every open store and returns the first error.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	stores := m.stores
	m.stores = make(map[string]*Store)
	m.mu.Unlock()

	var first error
	for key, s := range stores {
		if err := s.Close(); err != nil {
			m.logger.Warn("close project database", logging.F("domain", key), logging.Err(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// OpenCount returns how many stores are currently open.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// ListDomains returns the sanitized domain directories that hold a database,
// sorted.
func (m *Manager) ListDomains() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.root, "projects"))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read projects dir: %w", err)
	}
	out := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(m.root, "projects", e.Name(), DBFileName)); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
