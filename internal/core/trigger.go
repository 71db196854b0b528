package core

// Eligibility is what the trigger evaluator admits for one event.
type Eligibility struct {
	Jobs       []string        // eligible job names, declaration order
	Conditions map[string]bool // evaluated condition per eligible job
}

// Evaluate decides which jobs of the pipeline an event makes eligible and
// evaluates each job's condition against it. The result depends only on
// the pipeline and the event.
func Evaluate(p *Pipeline, ev Event) (Eligibility, error) {
	if err := ev.Validate(); err != nil {
		return Eligibility{}, err
	}
	out := Eligibility{Conditions: make(map[string]bool)}
	for _, j := range p.Jobs {
		if !j.Triggered(ev.Type) {
			continue
		}
		out.Jobs = append(out.Jobs, j.Name)
		out.Conditions[j.Name] = j.Condition(ev)
	}
	return out, nil
}
