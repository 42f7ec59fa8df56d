// Package profile defines named test profiles: the entry path, demo
// credentials, and expected landmark a generated test should assert on.
// Profiles are declared in a YAML file and select which generation engine a
// job uses.
package profile

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// DefaultName is the profile every installation carries.
const DefaultName = "default"

// Profile parameterizes test generation for one class of target apps.
type Profile struct {
	Name           string `yaml:"-"`
	EntryPath      string `yaml:"entry_path"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	ExpectSelector string `yaml:"expect_selector"`
	ExpectText     string `yaml:"expect_text"`
}

// Default returns the built-in demo profile.
func Default() Profile {
	return Profile{
		Name:           DefaultName,
		EntryPath:      "/",
		Username:       "demo",
		Password:       "demo",
		ExpectSelector: "h2",
		ExpectText:     "Welcome",
	}
}

// Set is an immutable collection of named profiles.
type Set struct {
	profiles map[string]Profile
}

type profilesFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// Load reads profiles from a YAML file. The built-in default profile is
// always present and may be overridden by a "default" entry in the file.
// An empty path yields the default-only set.
func Load(path string) (*Set, error) {
	set := &Set{profiles: map[string]Profile{DefaultName: Default()}}
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profiles file: %w", err)
	}

	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing profiles file: %w", err)
	}

	for name, p := range file.Profiles {
		p.Name = name
		if p.EntryPath == "" {
			p.EntryPath = "/"
		}
		set.profiles[name] = p
	}
	return set, nil
}

// Get returns the named profile.
func (s *Set) Get(name string) (Profile, bool) {
	p, ok := s.profiles[name]
	return p, ok
}

// Has reports whether the named profile exists.
func (s *Set) Has(name string) bool {
	_, ok := s.profiles[name]
	return ok
}

// Names lists profile names in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
