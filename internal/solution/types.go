package solution

// Feasibility classifies whether a solution can work given the caller's
// actual context. Unknown means the probes could not tell.
type Feasibility string

const (
	Feasible   Feasibility = "feasible"
	Infeasible Feasibility = "infeasible"
	Unknown    Feasibility = "unknown"
)

// rank orders feasibility groups for presentation.
func (f Feasibility) rank() int {
	switch f {
	case Feasible:
		return 0
	case Unknown:
		return 1
	default:
		return 2
	}
}

// Step is one concrete action within a solution. Steps referencing values
// only the caller can supply are flagged ManualInputRequired.
type Step struct {
	Order               int    `json:"order"`
	Description         string `json:"description"`
	ManualInputRequired bool   `json:"manual_input_required,omitempty"`
}

// Solution is one ranked remediation path. FixStrategy names the automated
// fix strategy able to execute it, empty when the solution is manual only.
type Solution struct {
	ID                  string      `json:"id"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	Steps               []Step      `json:"steps"`
	Feasibility         Feasibility `json:"feasibility"`
	SuccessRateEstimate float64     `json:"success_rate_estimate"`
	FixStrategy         string      `json:"fix_strategy,omitempty"`
}

// AutoFixable reports whether the solution can be executed by the fix
// engine without manual input.
func (s Solution) AutoFixable() bool {
	if s.FixStrategy == "" || s.Feasibility == Infeasible {
		return false
	}
	for _, st := range s.Steps {
		if st.ManualInputRequired {
			return false
		}
	}
	return true
}
