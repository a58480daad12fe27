// Package groups implements semantic group matching: case-insensitive
// substring activation of configured term groups and keyword expansion.
package groups

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/pkg/utils"
)

// Group is one configured semantic group.
type Group struct {
	Name        string   `yaml:"-" json:"name"`
	Words       []string `yaml:"words" json:"words"`
	AutoLearned []string `yaml:"auto_learned" json:"auto_learned"`
	Weight      float64  `yaml:"weight" json:"weight"`
}

// AllWords returns Words followed by AutoLearned, trimmed, with empty and
// exact duplicate entries dropped.
func (g Group) AllWords() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range [][]string{g.Words, g.AutoLearned} {
		for _, w := range list {
			w = strings.TrimSpace(w)
			if w == "" {
				continue
			}
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			out = append(out, w)
		}
	}
	return out
}

// Snapshot is an immutable view of the group configuration. Groups keep the
// order in which they appear in the file.
type Snapshot struct {
	Config map[string]any
	Groups []Group
	Source string
}

// Expansion is the result of matching keywords against a snapshot.
type Expansion struct {
	Keywords  []string
	Activated map[string]models.ActivatedGroup
	// Order lists activated group names in configuration order.
	Order []string
}

type groupFile struct {
	Config map[string]any `yaml:"config"`
	Groups yaml.Node      `yaml:"groups"`
}

// Parse decodes a group file. JSON input is accepted since it is valid YAML.
func Parse(data []byte) (*Snapshot, error) {
	var f groupFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse groups: %w", err)
	}
	snap := &Snapshot{Config: f.Config}
	if f.Groups.Kind == 0 {
		return snap, nil
	}
	if f.Groups.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("groups must be a mapping, got kind %d", f.Groups.Kind)
	}
	for i := 0; i+1 < len(f.Groups.Content); i += 2 {
		var g Group
		if err := f.Groups.Content[i+1].Decode(&g); err != nil {
			return nil, fmt.Errorf("group %q: %w", f.Groups.Content[i].Value, err)
		}
		g.Name = f.Groups.Content[i].Value
		if g.Weight == 0 {
			g.Weight = 1.0
		}
		snap.Groups = append(snap.Groups, g)
	}
	return snap, nil
}

// Defaults returns the built-in groups.
func Defaults() *Snapshot {
	snap, err := Parse([]byte(defaultGroupsYAML))
	if err != nil {
		panic(err)
	}
	snap.Source = "builtin"
	return snap
}

// LoadFile reads the group file at path. A missing path, a missing file or a
// file without groups yields the built-in defaults.
func LoadFile(path string) (*Snapshot, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read groups: %w", err)
	}
	snap, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if len(snap.Groups) == 0 {
		d := Defaults()
		d.Config = snap.Config
		return d, nil
	}
	snap.Source = path
	return snap, nil
}

// Group returns the named group.
func (s *Snapshot) Group(name string) (Group, bool) {
	for _, g := range s.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// Detect returns the groups activated by text: a group activates when at least
// one of its words occurs in text, compared case-insensitively. Strength is the
// fraction of the group's words that matched.
func (s *Snapshot) Detect(text string) (map[string]models.ActivatedGroup, []string) {
	activated := make(map[string]models.ActivatedGroup)
	var order []string
	if strings.TrimSpace(text) == "" {
		return activated, order
	}
	lower := strings.ToLower(text)
	for _, g := range s.Groups {
		all := g.AllWords()
		if len(all) == 0 {
			continue
		}
		var matched []string
		for _, w := range all {
			if strings.Contains(lower, strings.ToLower(w)) {
				matched = append(matched, w)
			}
		}
		if len(matched) == 0 {
			continue
		}
		activated[g.Name] = models.ActivatedGroup{
			Name:         g.Name,
			Strength:     float64(len(matched)) / float64(len(all)),
			MatchedWords: matched,
			AllWords:     all,
			Weight:       g.Weight,
		}
		order = append(order, g.Name)
	}
	return activated, order
}

// Expand activates groups against text, or against the keywords joined by
// spaces when text is blank, and returns the keywords followed by every word of
// every activated group. Duplicates are removed case-insensitively, keeping the
// first occurrence.
func (s *Snapshot) Expand(keywords []string, text string) Expansion {
	base := utils.DedupeFold(keywords)
	if strings.TrimSpace(text) == "" {
		text = strings.Join(base, " ")
	}
	activated, order := s.Detect(text)
	extra := make([][]string, 0, len(order)+1)
	extra = append(extra, base)
	for _, name := range order {
		extra = append(extra, activated[name].AllWords)
	}
	return Expansion{
		Keywords:  utils.DedupeFold(extra...),
		Activated: activated,
		Order:     order,
	}
}
