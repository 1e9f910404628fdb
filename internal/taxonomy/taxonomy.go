// Package taxonomy holds the controlled vocabulary of category tags.
package taxonomy

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultGroup is the primary category used when an article has no tags.
	DefaultGroup = "General"
	// DefaultTag is substituted when no proposed tag survives validation.
	DefaultTag = DefaultGroup + ": News"

	separator = ": "
)

// ErrEmpty is returned when a vocabulary has no tags at all.
var ErrEmpty = errors.New("vocabulary has no tags")

// Group is one category group with its ordered tag names.
type Group struct {
	Name string   `yaml:"group"`
	Tags []string `yaml:"tags"`
}

// Vocabulary is an immutable, ordered set of "Group: Tag" strings.
type Vocabulary struct {
	groups []Group
	tags   []string
	index  map[string]string // normalized form -> canonical tag
	bare   map[string]string // lowercase tag name -> canonical tag, "" when ambiguous
}

// New builds a Vocabulary from ordered groups. Blank names are skipped and
// duplicates keep their first position.
func New(groups []Group) (*Vocabulary, error) {
	v := &Vocabulary{index: make(map[string]string), bare: make(map[string]string)}
	for _, g := range groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			continue
		}
		kept := Group{Name: name}
		for _, t := range g.Tags {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			tag := name + separator + t
			key := normalize(tag)
			if _, dup := v.index[key]; dup {
				continue
			}
			v.index[key] = tag
			v.tags = append(v.tags, tag)
			if _, seen := v.bare[strings.ToLower(t)]; seen {
				v.bare[strings.ToLower(t)] = ""
			} else {
				v.bare[strings.ToLower(t)] = tag
			}
			kept.Tags = append(kept.Tags, t)
		}
		if len(kept.Tags) > 0 {
			v.groups = append(v.groups, kept)
		}
	}
	if len(v.tags) == 0 {
		return nil, ErrEmpty
	}
	return v, nil
}

// Tags returns the flattened "Group: Tag" list in vocabulary order.
func (v *Vocabulary) Tags() []string {
	out := make([]string, len(v.tags))
	copy(out, v.tags)
	return out
}

// Groups returns a copy of the ordered groups.
func (v *Vocabulary) Groups() []Group {
	out := make([]Group, len(v.groups))
	for i, g := range v.groups {
		out[i] = Group{Name: g.Name, Tags: append([]string(nil), g.Tags...)}
	}
	return out
}

// Canonical returns the vocabulary spelling of tag, matching case- and
// spacing-insensitively around the separator. A tag name without its group
// resolves when exactly one group has it.
func (v *Vocabulary) Canonical(tag string) (string, bool) {
	if c, ok := v.index[normalize(tag)]; ok {
		return c, true
	}
	if strings.Contains(tag, ":") {
		return "", false
	}
	c := v.bare[strings.ToLower(strings.TrimSpace(tag))]
	return c, c != ""
}

// Contains reports whether tag is an exact vocabulary member.
func (v *Vocabulary) Contains(tag string) bool {
	c, ok := v.index[normalize(tag)]
	return ok && c == tag
}

// Listing renders the vocabulary one "Group: Tag" per line for prompts.
func (v *Vocabulary) Listing() string {
	var b strings.Builder
	for i, tag := range v.tags {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s", tag)
	}
	return b.String()
}

// PrimaryCategory returns the group portion of the first tag, or DefaultGroup.
func PrimaryCategory(tags []string) string {
	if len(tags) == 0 {
		return DefaultGroup
	}
	group, _, ok := strings.Cut(tags[0], ":")
	group = strings.TrimSpace(group)
	if !ok || group == "" {
		return DefaultGroup
	}
	return group
}

func normalize(tag string) string {
	group, name, ok := strings.Cut(tag, ":")
	if !ok {
		return strings.ToLower(strings.TrimSpace(tag))
	}
	return strings.ToLower(strings.TrimSpace(group) + separator + strings.TrimSpace(name))
}
