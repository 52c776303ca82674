package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// teamSpec is the wire shape of a single group entry.
type teamSpec struct {
	Description string   `yaml:"description"`
	Ignored     bool     `yaml:"team_sync_ignored"`
	Parent      string   `yaml:"parent"`
	Members     []Member `yaml:"members"`
}

// Load reads and parses the team manifest at path.
func Load(path, prefix string) ([]Team, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read teams file: %w", err)
	}

	teams, err := Parse(data, prefix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return teams, nil
}

// Parse decodes the manifest, applies the name prefix to every group and
// parent reference, derives keys, and validates the result. Teams come back
// in document order. An empty document is a valid manifest with no groups.
func Parse(data []byte, prefix string) ([]Team, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	specs := map[string]teamSpec{}
	if err := dec.Decode(&specs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse teams: %w", err)
	}

	names, err := documentOrder(data)
	if err != nil {
		return nil, err
	}

	teams := make([]Team, 0, len(names))
	for _, name := range names {
		spec := specs[name]
		team := Team{
			Name:        ApplyPrefix(prefix, name),
			Description: spec.Description,
			Ignored:     spec.Ignored,
		}
		team.Key = Slug(team.Name)
		if spec.Parent != "" {
			team.Parent = ApplyPrefix(prefix, spec.Parent)
		}
		for _, m := range spec.Members {
			team.Members = append(team.Members, m.Username)
		}
		teams = append(teams, team)
	}

	if err := validate(teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// documentOrder re-reads the document as a raw node tree to recover the
// author's group order, which the map decode above discards. The run order
// among independent groups follows this order.
func documentOrder(data []byte) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse teams: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, nil
	}

	mapping := doc.Content[0]
	names := make([]string, 0, len(mapping.Content)/2)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		names = append(names, mapping.Content[i].Value)
	}
	return names, nil
}

func validate(teams []Team) error {
	declared := make(map[string]bool, len(teams))
	for _, t := range teams {
		declared[t.Name] = true
	}

	for _, t := range teams {
		if t.Key == "" {
			return fmt.Errorf("group %q: name yields an empty key", t.Name)
		}
		if t.Parent != "" && !declared[t.Parent] {
			return fmt.Errorf("group %q: parent %q is not declared", t.Name, t.Parent)
		}

		seen := make(map[string]bool, len(t.Members))
		for _, username := range t.Members {
			if username == "" {
				return fmt.Errorf("group %q: member with empty username", t.Name)
			}
			if seen[username] {
				return fmt.Errorf("group %q: duplicate member %q", t.Name, username)
			}
			seen[username] = true
		}
	}
	return nil
}
