package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BoardProfile is the per-project board description, checked into the
// repository as .conveyor.yaml. It identifies which board a working tree
// talks to; credentials never live here.
type BoardProfile struct {
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	BaseURL string `yaml:"base_url,omitempty"`

	// Notify names the delivery channels for each logical channel.
	Notify struct {
		Actionable string `yaml:"actionable,omitempty"`
		Info       string `yaml:"info,omitempty"`
	} `yaml:"notify,omitempty"`
}

// ProfileFileName is the board profile's well-known name.
const ProfileFileName = ".conveyor.yaml"

// LoadProfile reads a board profile. A missing file returns (nil, nil):
// profiles are optional and config/env can carry the board identity.
func LoadProfile(path string) (*BoardProfile, error) {
	if path == "" {
		path = ProfileFileName
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read board profile %s: %w", path, err)
	}

	var profile BoardProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse board profile %s: %w", path, err)
	}
	if profile.Owner == "" || profile.Repo == "" {
		return nil, fmt.Errorf("board profile %s must set owner and repo", path)
	}
	return &profile, nil
}

// Apply overlays the profile onto the config. Profile values fill gaps; they
// never override an explicit config or env setting.
func (p *BoardProfile) Apply(cfg *Config) {
	if p == nil {
		return
	}
	if cfg.BoardOwner == "" {
		cfg.BoardOwner = p.Owner
	}
	if cfg.BoardRepo == "" {
		cfg.BoardRepo = p.Repo
	}
	if cfg.BoardBaseURL == "" || cfg.BoardBaseURL == "https://api.github.com" {
		if p.BaseURL != "" {
			cfg.BoardBaseURL = p.BaseURL
		}
	}
}
