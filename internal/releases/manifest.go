package releases

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Platform string

const (
	PlatformWindows Platform = "windows"
	PlatformMac     Platform = "mac"
	PlatformLinux   Platform = "linux"
)

var (
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrAssetNotFound   = errors.New("release asset not found")
)

// ParsePlatform accepts the names clients send; empty means windows, the
// only build the desktop app shipped with originally.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "windows", "win", "win32":
		return PlatformWindows, nil
	case "mac", "macos", "darwin", "osx":
		return PlatformMac, nil
	case "linux":
		return PlatformLinux, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// Asset names one downloadable build. Name matches a GitHub release asset,
// Key an S3 object key, URL a fixed location for the static source.
type Asset struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key,omitempty"`
	URL  string `yaml:"url,omitempty"`
}

type Manifest struct {
	Assets map[Platform]Asset `yaml:"assets"`
}

func DefaultManifest() Manifest {
	return Manifest{Assets: map[Platform]Asset{
		PlatformWindows: {Name: "QuackQuerySetup.exe", Key: "releases/latest/QuackQuerySetup.exe"},
		PlatformMac:     {Name: "QuackQuery.dmg", Key: "releases/latest/QuackQuery.dmg"},
		PlatformLinux:   {Name: "QuackQuery.AppImage", Key: "releases/latest/QuackQuery.AppImage"},
	}}
}

// LoadManifest reads a YAML manifest and lays it over the defaults. An empty
// path returns the defaults.
func LoadManifest(path string) (Manifest, error) {
	m := DefaultManifest()
	if path == "" {
		return m, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read release manifest: %w", err)
	}
	return m.merge(raw)
}

func (m Manifest) merge(raw []byte) (Manifest, error) {
	var override Manifest
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return Manifest{}, fmt.Errorf("parse release manifest: %w", err)
	}
	for p, a := range override.Assets {
		if _, err := ParsePlatform(string(p)); err != nil {
			return Manifest{}, err
		}
		base := m.Assets[p]
		if a.Name != "" {
			base.Name = a.Name
		}
		if a.Key != "" {
			base.Key = a.Key
		}
		if a.URL != "" {
			base.URL = a.URL
		}
		m.Assets[p] = base
	}
	return m, nil
}

func (m Manifest) Asset(p Platform) (Asset, error) {
	a, ok := m.Assets[p]
	if !ok {
		return Asset{}, fmt.Errorf("%w: no %s build", ErrAssetNotFound, p)
	}
	return a, nil
}
