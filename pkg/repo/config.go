package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bigkevmcd/go-configparser"
)

// Config is the INI-style .git/config file. Remotes live in
// `remote "<name>"` sections with a url option, identity in the user
// section.
type Config struct {
	parser *configparser.ConfigParser
	path   string
}

func (r *Repo) configFilePath() string {
	return filepath.Join(r.GitDir, "config")
}

// LoadConfig reads .git/config. A missing or empty file yields an empty
// config.
func (r *Repo) LoadConfig() (*Config, error) {
	path := r.configFilePath()
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		return &Config{parser: configparser.New(), path: path}, nil
	}
	p, err := configparser.NewConfigParserFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &Config{parser: p, path: path}, nil
}

// Save writes the config back to disk.
func (c *Config) Save() error {
	if err := c.parser.SaveWithDelimiter(c.path, "="); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

func remoteSection(name string) string {
	return fmt.Sprintf("remote %q", name)
}

// SetRemote records (or replaces) a named remote's URL.
func (c *Config) SetRemote(name, url string) error {
	section := remoteSection(name)
	if !c.parser.HasSection(section) {
		if err := c.parser.AddSection(section); err != nil {
			return fmt.Errorf("config: add remote %q: %w", name, err)
		}
	}
	if err := c.parser.Set(section, "url", url); err != nil {
		return fmt.Errorf("config: set remote %q url: %w", name, err)
	}
	return nil
}

// RemoteURL returns the URL configured for a named remote.
func (c *Config) RemoteURL(name string) (string, error) {
	url, err := c.parser.Get(remoteSection(name), "url")
	if err != nil {
		return "", fmt.Errorf("config: no remote %q", name)
	}
	return url, nil
}

// Remotes lists the configured remote names, sorted.
func (c *Config) Remotes() []string {
	var names []string
	for _, section := range c.parser.Sections() {
		rest, ok := strings.CutPrefix(section, "remote ")
		if !ok {
			continue
		}
		name := strings.Trim(rest, `"`)
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// SetUser records the committer identity in the user section.
func (c *Config) SetUser(name, email string) error {
	if !c.parser.HasSection("user") {
		if err := c.parser.AddSection("user"); err != nil {
			return fmt.Errorf("config: add user section: %w", err)
		}
	}
	if err := c.parser.Set("user", "name", name); err != nil {
		return fmt.Errorf("config: set user.name: %w", err)
	}
	if err := c.parser.Set("user", "email", email); err != nil {
		return fmt.Errorf("config: set user.email: %w", err)
	}
	return nil
}

// configuredIdentity returns user.name and user.email from the config
// file, empty strings when unset.
func (r *Repo) configuredIdentity() (name, email string) {
	cfg, err := r.LoadConfig()
	if err != nil {
		return "", ""
	}
	name, _ = cfg.parser.Get("user", "name")
	email, _ = cfg.parser.Get("user", "email")
	return name, email
}

// AddRemote stores a remote in the config, refusing duplicates.
func (r *Repo) AddRemote(name, url string) error {
	if name == "" || url == "" {
		return fmt.Errorf("remote: name and url required")
	}
	cfg, err := r.LoadConfig()
	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if _, err := cfg.RemoteURL(name); err == nil {
		return fmt.Errorf("remote: %q already exists", name)
	}
	if err := cfg.SetRemote(name, url); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	return nil
}

// RemoteURL resolves a configured remote name to its URL.
func (r *Repo) RemoteURL(name string) (string, error) {
	cfg, err := r.LoadConfig()
	if err != nil {
		return "", err
	}
	return cfg.RemoteURL(name)
}
