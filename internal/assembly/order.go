// Package assembly tracks which analysis steps produced output during a run
// and merges fresh and cached step results into the final ordered report.
package assembly

// DefaultHardGate is the section whose absence from a report is fatal.
const DefaultHardGate = "monitoring"

// Step is one entry of a processing order.
type Step struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required" yaml:"required"`
}

// ProcessingOrder defines both execution order and the mandatory sections.
type ProcessingOrder []Step

// Names returns every step name in order.
func (o ProcessingOrder) Names() []string {
	names := make([]string, 0, len(o))
	for _, s := range o {
		names = append(names, s.Name)
	}
	return names
}

// RequiredNames returns the names of steps with Required set, in order.
func (o ProcessingOrder) RequiredNames() []string {
	var names []string
	for _, s := range o {
		if s.Required {
			names = append(names, s.Name)
		}
	}
	return names
}

// Lookup returns the entry named name.
func (o ProcessingOrder) Lookup(name string) (Step, bool) {
	for _, s := range o {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
