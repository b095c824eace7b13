package wave

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Playbook declares an ordered sequence of waves.
type Playbook struct {
	Name  string `yaml:"name"`
	Waves []Wave `yaml:"waves"`
}

// Wave holds tasks that run concurrently, then gates that must resolve
// before the next wave starts.
type Wave struct {
	Name  string   `yaml:"name"`
	Tasks []Task   `yaml:"tasks"`
	Gates []string `yaml:"gates,omitempty"`
}

// Task invokes one MCP tool through the registry, by its namespaced
// "server_tool" name.
type Task struct {
	ID      string         `yaml:"id,omitempty"`
	Tool    string         `yaml:"tool"`
	Args    map[string]any `yaml:"args,omitempty"`
	Timeout int            `yaml:"timeout,omitempty"` // seconds, overrides the configured task timeout
}

// Load reads and validates a playbook file. Unnamed waves and tasks get
// positional names so results and events always carry an identifier.
func Load(path string) (*Playbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open playbook: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var pb Playbook
	if err := dec.Decode(&pb); err != nil {
		return nil, fmt.Errorf("failed to parse playbook: %w", err)
	}

	if pb.Name == "" {
		pb.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := pb.validate(); err != nil {
		return nil, err
	}
	return &pb, nil
}

func (pb *Playbook) validate() error {
	if len(pb.Waves) == 0 {
		return fmt.Errorf("playbook %q has no waves", pb.Name)
	}

	for i := range pb.Waves {
		w := &pb.Waves[i]
		if w.Name == "" {
			w.Name = fmt.Sprintf("wave-%d", i+1)
		}
		if len(w.Tasks) == 0 {
			return fmt.Errorf("wave %q has no tasks", w.Name)
		}

		seen := make(map[string]bool, len(w.Tasks))
		for j := range w.Tasks {
			t := &w.Tasks[j]
			if t.ID == "" {
				t.ID = fmt.Sprintf("task-%d", j+1)
			}
			if t.Tool == "" {
				return fmt.Errorf("wave %q task %q has no tool", w.Name, t.ID)
			}
			if seen[t.ID] {
				return fmt.Errorf("wave %q has duplicate task id %q", w.Name, t.ID)
			}
			seen[t.ID] = true
		}
	}
	return nil
}
