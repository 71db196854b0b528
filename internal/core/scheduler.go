package core

import "sort"

// Resolve builds the execution plan for the eligible jobs: a topological
// order over `needs` edges in which ready jobs are taken in declaration
// order. Needs pointing outside the eligible set, and cycles, are GraphErrors.
func Resolve(jobs []*Job, eligible []string) ([]*Job, error) {
	index := make(map[string]int, len(jobs))
	for i, j := range jobs {
		if _, dup := index[j.Name]; dup {
			return nil, &GraphError{Kind: GraphDuplicate, Jobs: []string{j.Name}}
		}
		index[j.Name] = i
	}

	selected := make(map[string]bool, len(eligible))
	for _, name := range eligible {
		if _, ok := index[name]; !ok {
			return nil, &GraphError{Kind: GraphDangling, Jobs: []string{name}}
		}
		selected[name] = true
	}

	// pending holds unmet dependency counts; dependents the reverse edges.
	pending := make(map[string]int, len(selected))
	dependents := make(map[string][]string)
	var dangling []string
	for _, j := range jobs {
		if !selected[j.Name] {
			continue
		}
		pending[j.Name] = 0
		for _, dep := range j.Needs {
			if !selected[dep] {
				dangling = append(dangling, j.Name+" -> "+dep)
				continue
			}
			pending[j.Name]++
			dependents[dep] = append(dependents[dep], j.Name)
		}
	}
	if len(dangling) > 0 {
		return nil, &GraphError{Kind: GraphDangling, Jobs: dangling}
	}

	var ready []int
	for name, n := range pending {
		if n == 0 {
			ready = append(ready, index[name])
		}
	}

	plan := make([]*Job, 0, len(selected))
	for len(ready) > 0 {
		sort.Ints(ready)
		next := jobs[ready[0]]
		ready = ready[1:]
		plan = append(plan, next)
		for _, d := range dependents[next.Name] {
			pending[d]--
			if pending[d] == 0 {
				ready = append(ready, index[d])
			}
		}
	}

	if len(plan) != len(selected) {
		var stuck []string
		for _, j := range jobs {
			if selected[j.Name] && pending[j.Name] > 0 {
				stuck = append(stuck, j.Name)
			}
		}
		return nil, &GraphError{Kind: GraphCycle, Jobs: stuck}
	}
	return plan, nil
}
