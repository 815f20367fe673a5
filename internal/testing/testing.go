// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/curator/internal/audio"
	"github.com/desertthunder/curator/internal/services"
	"github.com/desertthunder/curator/internal/shared"
)

// NewTestDB creates an in-memory SQLite database with migrations applied, closed on cleanup.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// MockMetadataSource is a test double for [services.MetadataSource] backed by maps.
type MockMetadataSource struct {
	mu            sync.Mutex
	Artists       map[string]*services.Artist        // by MBID
	ReleaseGroups map[string]*services.ReleaseGroup  // by release group ID
	ByArtist      map[string][]services.ReleaseGroup // by artist MBID
	Err           error
	Calls         map[string]int
}

// NewMockMetadataSource returns an empty source.
func NewMockMetadataSource() *MockMetadataSource {
	return &MockMetadataSource{
		Artists:       make(map[string]*services.Artist),
		ReleaseGroups: make(map[string]*services.ReleaseGroup),
		ByArtist:      make(map[string][]services.ReleaseGroup),
		Calls:         make(map[string]int),
	}
}

func (m *MockMetadataSource) record(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	return m.Err
}

func (m *MockMetadataSource) SearchArtist(ctx context.Context, name string) ([]services.Artist, error) {
	if err := m.record("SearchArtist"); err != nil {
		return nil, err
	}
	var out []services.Artist
	for _, a := range m.Artists {
		if strings.EqualFold(a.Name, name) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *MockMetadataSource) GetArtist(ctx context.Context, mbid string) (*services.Artist, error) {
	if err := m.record("GetArtist"); err != nil {
		return nil, err
	}
	a, ok := m.Artists[mbid]
	if !ok {
		return nil, fmt.Errorf("%w: artist %s", shared.ErrEntityNotFound, mbid)
	}
	return a, nil
}

func (m *MockMetadataSource) GetArtistReleaseGroups(ctx context.Context, mbid string) ([]services.ReleaseGroup, error) {
	if err := m.record("GetArtistReleaseGroups"); err != nil {
		return nil, err
	}
	return m.ByArtist[mbid], nil
}

func (m *MockMetadataSource) GetReleaseGroup(ctx context.Context, id string) (*services.ReleaseGroup, error) {
	if err := m.record("GetReleaseGroup"); err != nil {
		return nil, err
	}
	rg, ok := m.ReleaseGroups[id]
	if !ok {
		return nil, fmt.Errorf("%w: release group %s", shared.ErrEntityNotFound, id)
	}
	return rg, nil
}

func (m *MockMetadataSource) Name() string { return "mock" }

// MockExecutor records commands instead of running them. Handler, when set, decides the output.
type MockExecutor struct {
	mu       sync.Mutex
	Commands []string
	Handler  func(dir, name string, args ...string) ([]byte, error)
}

func (m *MockExecutor) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	m.mu.Unlock()

	if m.Handler != nil {
		return m.Handler(dir, name, args...)
	}
	return nil, nil
}

// Ran reports whether a command starting with prefix was recorded.
func (m *MockExecutor) Ran(prefix string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// MockAnalyzer returns a fixed result for every file.
type MockAnalyzer struct {
	Result *audio.Result
	Err    error
	Paths  []string
}

func (m *MockAnalyzer) Analyze(ctx context.Context, path string) (*audio.Result, error) {
	m.Paths = append(m.Paths, path)
	if m.Err != nil {
		return nil, m.Err
	}
	r := *m.Result
	return &r, nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// WriteFile creates path and its parent directories with the given content.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if i := strings.LastIndex(path, string(os.PathSeparator)); i > 0 {
		if err := os.MkdirAll(path[:i], 0755); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
