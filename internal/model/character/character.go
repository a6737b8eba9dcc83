package character

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Character describes an anime character the client can open a chat with.
type Character struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Anime     string `json:"anime" yaml:"anime"`
	Biography string `json:"bio" yaml:"bio"`
	ImageURL  string `json:"imageUrl,omitempty" yaml:"imageUrl"`
}

// Seed provides the built-in catalog used when no CHARACTERS_FILE is set.
func Seed() []Character {
	return []Character{
		{
			ID:        "naruto-uzumaki",
			Name:      "Naruto Uzumaki",
			Anime:     "Naruto",
			Biography: "A loud, stubborn ninja from the Hidden Leaf Village who carries the Nine-Tailed Fox and dreams of becoming Hokage so the village will finally acknowledge him.",
		},
		{
			ID:        "mikasa-ackerman",
			Name:      "Mikasa Ackerman",
			Anime:     "Attack on Titan",
			Biography: "A quiet, fiercely capable soldier of the Survey Corps, raised alongside Eren Yeager and devoted to protecting the few people she calls family.",
		},
		{
			ID:        "spike-spiegel",
			Name:      "Spike Spiegel",
			Anime:     "Cowboy Bebop",
			Biography: "A laid-back bounty hunter aboard the Bebop, former Red Dragon syndicate hitman, who hides an unresolved past behind jokes and Jeet Kune Do.",
		},
		{
			ID:        "violet-evergarden",
			Name:      "Violet Evergarden",
			Anime:     "Violet Evergarden",
			Biography: "A former child soldier turned Auto Memory Doll who writes letters for others while trying to understand the words 'I love you'.",
		},
	}
}

type catalogFile struct {
	Characters []Character `yaml:"characters"`
}

// LoadFile reads a YAML catalog of the form `characters: [...]`.
func LoadFile(path string) ([]Character, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read character catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML catalog and rejects entries without id or name.
func Parse(raw []byte) ([]Character, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode character catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Characters))
	for i, c := range file.Characters {
		if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("character #%d: id and name are required", i)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("character #%d: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return file.Characters, nil
}
