package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

// Store persists plugin rows. [repositories.PluginRepository] satisfies it.
type Store interface {
	Create(ctx context.Context, p *models.Plugin) error
	Get(ctx context.Context, id int64) (*models.Plugin, error)
	GetByName(ctx context.Context, name string) (*models.Plugin, error)
	Update(ctx context.Context, p *models.Plugin) error
	Delete(ctx context.Context, id int64) error
}

// Options configures a [Manager].
type Options struct {
	Dir      string // where remote plugins are cloned
	GitPath  string
	NPMPath  string
	Executor Executor
	Logger   *log.Logger
}

// Manager installs, updates and builds plugins.
type Manager struct {
	dir    string
	git    string
	npm    string
	exec   Executor
	store  Store
	logger *log.Logger
}

// NewManager creates a plugin manager backed by store.
func NewManager(store Store, opts Options) *Manager {
	if opts.GitPath == "" {
		opts.GitPath = "git"
	}
	if opts.NPMPath == "" {
		opts.NPMPath = "npm"
	}
	if opts.Executor == nil {
		opts.Executor = CommandExecutor{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Manager{
		dir:    opts.Dir,
		git:    opts.GitPath,
		npm:    opts.NPMPath,
		exec:   opts.Executor,
		store:  store,
		logger: opts.Logger,
	}
}

// manifest is the part of a plugin's package.json that curator reads.
type manifest struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Scripts map[string]string `json:"scripts"`
}

func readManifest(dir string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if errors.Is(err, os.ErrNotExist) {
		return &manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: package.json: %v", shared.ErrInvalidInput, err)
	}
	return &m, nil
}

// InstallLocal registers the plugin in dir. An already registered name is returned with ErrAlreadyExists.
func (m *Manager) InstallLocal(ctx context.Context, dir string) (*models.Plugin, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: plugin path %s", shared.ErrInvalidInput, dir)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: plugin directory %s", shared.ErrEntityNotFound, dir)
	}

	mf, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	name := mf.Name
	if name == "" {
		name = filepath.Base(dir)
	}

	if existing, err := m.store.GetByName(ctx, name); err == nil {
		return existing, fmt.Errorf("%w: plugin %s", shared.ErrAlreadyExists, name)
	}

	p := &models.Plugin{Name: name, Path: dir, Version: mf.Version}
	if err := m.store.Create(ctx, p); err != nil {
		return nil, err
	}

	m.logger.Info("installed plugin", "plugin", p.Name, "path", p.Path)
	return p, nil
}

// InstallRemote clones repo into the plugin directory and checks out ref when given.
func (m *Manager) InstallRemote(ctx context.Context, repo, refType, ref string) (*models.Plugin, error) {
	name := RepoName(repo)
	if name == "" {
		return nil, fmt.Errorf("%w: repository %q", shared.ErrInvalidInput, repo)
	}

	if existing, err := m.store.GetByName(ctx, name); err == nil {
		return existing, fmt.Errorf("%w: plugin %s", shared.ErrAlreadyExists, name)
	}

	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plugin directory: %w", err)
	}
	dest := filepath.Join(m.dir, name)

	if _, err := m.exec.Run(ctx, m.dir, m.git, "clone", "--", repo, dest); err != nil {
		return nil, err
	}
	if ref != "" {
		if err := m.checkout(ctx, dest, refType, ref); err != nil {
			os.RemoveAll(dest)
			return nil, err
		}
	}

	mf, err := readManifest(dest)
	if err != nil {
		return nil, err
	}

	p := &models.Plugin{
		Name:          name,
		Path:          dest,
		Repository:    repo,
		Reference:     ref,
		ReferenceType: refType,
		Version:       m.version(ctx, dest, mf),
	}
	if err := m.store.Create(ctx, p); err != nil {
		return nil, err
	}

	m.logger.Info("installed remote plugin", "plugin", p.Name, "repository", repo, "reference", ref)
	return p, nil
}

// Uninstall removes the plugin row and, for cloned plugins, its checkout.
func (m *Manager) Uninstall(ctx context.Context, id int64) (*models.Plugin, error) {
	p, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Repository != "" && m.owns(p.Path) {
		if err := os.RemoveAll(p.Path); err != nil {
			return nil, fmt.Errorf("failed to remove plugin files: %w", err)
		}
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return nil, err
	}

	m.logger.Info("uninstalled plugin", "plugin", p.Name)
	return p, nil
}

// SetEnabled flips the enabled flag. It reports false when the plugin was already in that state.
func (m *Manager) SetEnabled(ctx context.Context, id int64, enabled bool) (*models.Plugin, bool, error) {
	p, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if p.Enabled == enabled {
		return p, false, nil
	}

	p.Enabled = enabled
	if err := m.store.Update(ctx, p); err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// Upgrade fetches the remote and checks out target, or pulls the tracked reference when target is empty.
func (m *Manager) Upgrade(ctx context.Context, id int64, target string) (*models.Plugin, error) {
	p, err := m.remotePlugin(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := m.exec.Run(ctx, p.Path, m.git, "fetch", "--tags", "origin"); err != nil {
		return nil, err
	}

	switch {
	case target != "":
		if err := m.checkout(ctx, p.Path, models.ReferenceTag, target); err != nil {
			return nil, err
		}
	case p.ReferenceType == "" || p.ReferenceType == models.ReferenceBranch:
		if _, err := m.exec.Run(ctx, p.Path, m.git, "pull", "--ff-only"); err != nil {
			return nil, err
		}
	}

	mf, err := readManifest(p.Path)
	if err != nil {
		return nil, err
	}
	p.Version = m.version(ctx, p.Path, mf)
	if err := m.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ChangeReference switches a cloned plugin to another branch, tag or commit.
func (m *Manager) ChangeReference(ctx context.Context, id int64, refType, ref string) (*models.Plugin, error) {
	p, err := m.remotePlugin(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := m.exec.Run(ctx, p.Path, m.git, "fetch", "--tags", "origin"); err != nil {
		return nil, err
	}
	if err := m.checkout(ctx, p.Path, refType, ref); err != nil {
		return nil, err
	}

	mf, err := readManifest(p.Path)
	if err != nil {
		return nil, err
	}
	p.Reference = ref
	p.ReferenceType = refType
	p.Version = m.version(ctx, p.Path, mf)
	if err := m.store.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Build runs npm install followed by the build script.
func (m *Manager) Build(ctx context.Context, id int64) (*models.Plugin, error) {
	p, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	mf, err := readManifest(p.Path)
	if err != nil {
		return nil, err
	}
	if _, ok := mf.Scripts["build"]; !ok {
		return nil, fmt.Errorf("%w: plugin %s has no build script", shared.ErrInvalidInput, p.Name)
	}

	if _, err := m.exec.Run(ctx, p.Path, m.npm, "install"); err != nil {
		return nil, err
	}
	if _, err := m.exec.Run(ctx, p.Path, m.npm, "run", "build"); err != nil {
		return nil, err
	}
	return p, nil
}

// Migrate runs the plugin's migrate script if it declares one. Plugins without one are left alone.
func (m *Manager) Migrate(ctx context.Context, p *models.Plugin) error {
	mf, err := readManifest(p.Path)
	if err != nil {
		return err
	}
	if _, ok := mf.Scripts["migrate"]; !ok {
		return nil
	}
	_, err = m.exec.Run(ctx, p.Path, m.npm, "run", "migrate")
	return err
}

func (m *Manager) remotePlugin(ctx context.Context, id int64) (*models.Plugin, error) {
	p, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Repository == "" {
		return nil, fmt.Errorf("%w: plugin %s was installed from a local path", shared.ErrInvalidInput, p.Name)
	}
	return p, nil
}

// checkout switches dir to ref. The trailing "--" keeps ref from being read as a path.
func (m *Manager) checkout(ctx context.Context, dir, refType, ref string) error {
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("%w: reference %q", shared.ErrInvalidInput, ref)
	}
	args := []string{"checkout", ref, "--"}
	if refType == models.ReferenceBranch {
		args = []string{"checkout", "-B", ref, "origin/" + ref, "--"}
	}
	_, err := m.exec.Run(ctx, dir, m.git, args...)
	return err
}

// version prefers the manifest version and falls back to the short commit hash.
func (m *Manager) version(ctx context.Context, dir string, mf *manifest) string {
	if mf.Version != "" {
		return mf.Version
	}
	out, err := m.exec.Run(ctx, dir, m.git, "rev-parse", "--short", "HEAD")
	if err != nil {
		m.logger.Debug("could not resolve plugin commit", "path", dir, "error", err)
		return ""
	}
	return strings.TrimSpace(string(out))
}

// owns reports whether p lies inside the managed plugin directory.
func (m *Manager) owns(p string) bool {
	if m.dir == "" {
		return false
	}
	rel, err := filepath.Rel(m.dir, p)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// RepoName derives a plugin name from a git URL: "https://host/org/my-plugin.git" yields "my-plugin".
func RepoName(repo string) string {
	repo = strings.TrimRight(strings.TrimSpace(repo), "/")
	if i := strings.LastIndex(repo, ":"); i >= 0 && !strings.Contains(repo[:i], "/") {
		repo = repo[i+1:] // scp-like git@host:org/name
	}
	name := strings.TrimSuffix(path.Base(repo), ".git")
	if name == "." || name == "/" {
		return ""
	}
	return name
}
