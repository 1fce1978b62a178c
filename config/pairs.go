package config

import (
	"fmt"
	"os"
	"time"

	"github.com/alejandrodnm/statarb/internal/domain"
	"gopkg.in/yaml.v3"
)

// PairsFile is the scan-to-trade handoff: the scanner writes it, the
// trader reads it. Keeping it as a file lets an operator review or edit
// the pair set before trading it.
type PairsFile struct {
	GeneratedAt time.Time              `yaml:"generated_at"`
	Pairs       []domain.PairCandidate `yaml:"pairs"`
}

// SavePairs writes the candidate set to path.
func SavePairs(path string, candidates []domain.PairCandidate) error {
	out := PairsFile{
		GeneratedAt: time.Now().UTC(),
		Pairs:       candidates,
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("config.SavePairs: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config.SavePairs: write %q: %w", path, err)
	}
	return nil
}

// LoadPairs reads a pairs file written by SavePairs.
func LoadPairs(path string) ([]domain.PairCandidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.LoadPairs: read %q: %w", path, err)
	}
	var file PairsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config.LoadPairs: parse YAML: %w", err)
	}
	if len(file.Pairs) == 0 {
		return nil, fmt.Errorf("config.LoadPairs: %q contains no pairs", path)
	}
	return file.Pairs, nil
}
