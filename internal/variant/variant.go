// Package variant loads the deployment profiles of the order form.
//
// Each profile describes one deployed form: its endpoint, id prefix and which
// optional steps (confirmation, stock-hold toggle, clipboard summary) it has.
package variant

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"

	"github.com/kunhuatsai-cpu/tilepark-order/internal/enum"
	"gopkg.in/yaml.v3"
)

//go:embed variants.yaml
var defaultProfiles []byte

// ErrUnknownVariant is returned by Registry.Get for names not configured.
var ErrUnknownVariant = errors.New("unknown variant")

// Options toggles the optional parts of the workflow.
type Options struct {
	EnableConfirmationStep bool `yaml:"enable_confirmation_step" json:"enableConfirmationStep"`
	EnableStockHoldMode    bool `yaml:"enable_stock_hold_mode" json:"enableStockHoldMode"`
	EnableClipboardSummary bool `yaml:"enable_clipboard_summary" json:"enableClipboardSummary"`
}

// Profile is one deployed form variant.
type Profile struct {
	Name     string  `yaml:"name" json:"name"`
	Title    string  `yaml:"title" json:"title"`
	Endpoint string  `yaml:"endpoint" json:"-"`
	IDPrefix string  `yaml:"id_prefix" json:"idPrefix"`
	DeepLink string  `yaml:"deep_link" json:"deepLink"`
	AckMode  string  `yaml:"ack_mode" json:"ackMode"`
	Options  Options `yaml:"options" json:"options"`
}

type profileFile struct {
	Default  string    `yaml:"default"`
	Variants []Profile `yaml:"variants"`
}

// Registry holds the loaded profiles by name.
type Registry struct {
	profiles    map[string]Profile
	defaultName string
}

// Load reads profiles from path, or the embedded defaults when path is empty.
func Load(path string) (*Registry, error) {
	data := defaultProfiles
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load variants %q: %w", path, err)
		}
		data = b
	}
	return Parse(data)
}

// Parse builds a registry from YAML.
func Parse(data []byte) (*Registry, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse variants: %w", err)
	}
	if len(f.Variants) == 0 {
		return nil, errors.New("parse variants: no variants defined")
	}

	reg := &Registry{profiles: make(map[string]Profile, len(f.Variants))}
	for i, p := range f.Variants {
		if p.Name == "" {
			return nil, fmt.Errorf("variants[%d]: name is required", i)
		}
		if _, dup := reg.profiles[p.Name]; dup {
			return nil, fmt.Errorf("variants[%d]: duplicate name %q", i, p.Name)
		}
		if err := validateEndpoint(p.Endpoint); err != nil {
			return nil, fmt.Errorf("variants[%d] %s: %w", i, p.Name, err)
		}
		switch p.AckMode {
		case "":
			p.AckMode = enum.AckModeOpaque
		case enum.AckModeOpaque, enum.AckModeAcknowledged:
		default:
			return nil, fmt.Errorf("variants[%d] %s: invalid ack_mode %q", i, p.Name, p.AckMode)
		}
		if p.Title == "" {
			p.Title = p.Name
		}
		reg.profiles[p.Name] = p
	}

	reg.defaultName = f.Default
	if reg.defaultName == "" {
		reg.defaultName = f.Variants[0].Name
	}
	if _, ok := reg.profiles[reg.defaultName]; !ok {
		return nil, fmt.Errorf("parse variants: default %q is not defined", reg.defaultName)
	}
	return reg, nil
}

func validateEndpoint(s string) error {
	if s == "" {
		return errors.New("endpoint is required")
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint scheme %q", u.Scheme)
	}
	return nil
}

// Get returns the profile with the given name.
func (r *Registry) Get(name string) (Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownVariant, name)
	}
	return p, nil
}

// Default returns the profile used when no variant is named.
func (r *Registry) Default() Profile {
	return r.profiles[r.defaultName]
}

// SetDefault changes the default profile.
func (r *Registry) SetDefault(name string) error {
	if _, err := r.Get(name); err != nil {
		return err
	}
	r.defaultName = name
	return nil
}

// List returns all profiles sorted by name.
func (r *Registry) List() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
