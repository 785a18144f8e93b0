package chat

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_profile.yaml
var defaultProfileYAML []byte

// Profile holds the company facts and canned text the assistant works from.
type Profile struct {
	Name          string   `yaml:"name"`
	Intro         string   `yaml:"intro"`
	Facts         []string `yaml:"facts"`
	Instructions  []string `yaml:"instructions"`
	DefaultSource string   `yaml:"default_source"`
	MockReplies   []string `yaml:"mock_replies"`
	Suggestions   []string `yaml:"suggestions"`
}

// DefaultProfile returns the built-in profile.
func DefaultProfile() *Profile {
	p, err := ParseProfile(defaultProfileYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded profile: %v", err))
	}
	return p
}

// LoadProfile reads a profile from path. An empty path returns the default.
// Fields missing from the file fall back to the default profile's values.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := ParseProfile(data)
	if err != nil {
		return nil, err
	}
	p.fillFrom(DefaultProfile())
	return p, nil
}

func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile yaml: %w", err)
	}
	p.Intro = strings.TrimSpace(p.Intro)
	return &p, nil
}

func (p *Profile) fillFrom(d *Profile) {
	if p.Name == "" {
		p.Name = d.Name
	}
	if p.Intro == "" {
		p.Intro = d.Intro
	}
	if len(p.Facts) == 0 {
		p.Facts = d.Facts
	}
	if len(p.Instructions) == 0 {
		p.Instructions = d.Instructions
	}
	if p.DefaultSource == "" {
		p.DefaultSource = d.DefaultSource
	}
	if len(p.MockReplies) == 0 {
		p.MockReplies = d.MockReplies
	}
	if len(p.Suggestions) == 0 {
		p.Suggestions = d.Suggestions
	}
}

// Suggest returns up to limit suggestions containing q, case-insensitively.
// Queries shorter than two characters get none.
func (p *Profile) Suggest(q string, limit int) []string {
	out := []string{}
	if len([]rune(q)) < 2 {
		return out
	}
	needle := strings.ToLower(q)
	for _, s := range p.Suggestions {
		if strings.Contains(strings.ToLower(s), needle) {
			out = append(out, s)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
