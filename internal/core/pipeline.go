package core

import (
	"errors"
	"fmt"
)

// Pipeline is the static job graph evaluated for every event.
// Jobs keep declaration order; it breaks ties in the execution plan.
type Pipeline struct {
	Name string `yaml:"name"`
	Jobs []*Job `yaml:"jobs"`
}

// Validate checks the definition itself and normalizes trigger names.
// Dependency shape (cycles, dangling needs) is checked per event by Resolve.
func (p *Pipeline) Validate() error {
	if len(p.Jobs) == 0 {
		return errors.New("pipeline has no jobs")
	}
	seen := make(map[string]bool, len(p.Jobs))
	for _, j := range p.Jobs {
		if j == nil || j.Name == "" {
			return errors.New("job without a name")
		}
		if seen[j.Name] {
			return &GraphError{Kind: GraphDuplicate, Jobs: []string{j.Name}}
		}
		seen[j.Name] = true

		if len(j.On) == 0 {
			return fmt.Errorf("job %s: no triggers declared", j.Name)
		}
		for i, raw := range j.On {
			t, err := ParseEventType(string(raw))
			if err != nil {
				return fmt.Errorf("job %s: %w", j.Name, err)
			}
			// matching in Triggered is exact
			j.On[i] = t
		}
		if j.Produces != nil && (j.Produces.Name == "" || j.Produces.Path == "") {
			return fmt.Errorf("job %s: produces needs both name and path", j.Name)
		}
		if len(j.Steps) == 0 {
			return fmt.Errorf("job %s: no steps", j.Name)
		}
		for i, s := range j.Steps {
			if (s.Run == "") == (s.Uses == "") {
				return fmt.Errorf("job %s: step %s must set exactly one of run or uses", j.Name, s.Label(i))
			}
			if _, err := s.TimeoutOr(0); err != nil {
				return fmt.Errorf("job %s: step %s: %w", j.Name, s.Label(i), err)
			}
		}
	}
	return nil
}
