package models

// WorkflowType selects which stage list an admission session runs on.
// Fixed at session creation; changing it afterwards would invalidate
// the transition history of in-flight enquiries.
type WorkflowType string

const (
	WorkflowSimple   WorkflowType = "SIMPLE"
	WorkflowStandard WorkflowType = "STANDARD"
	WorkflowComplex  WorkflowType = "COMPLEX"
)

// Valid reports whether the workflow type is one of the supported shapes.
func (w WorkflowType) Valid() bool {
	switch w {
	case WorkflowSimple, WorkflowStandard, WorkflowComplex:
		return true
	}
	return false
}

// StageRejectedKey is the terminal pseudo-stage reachable from any
// non-terminal stage. It never appears in a stage list.
const StageRejectedKey = "REJECTED"

// StageDefinition describes one step of an admission pipeline.
// Orders are contiguous non-negative integers starting at 0 and the
// highest-order stage is terminal (the ENROLLED equivalent).
type StageDefinition struct {
	Key        string `db:"key" json:"key"`
	Label      string `db:"label" json:"label"`
	Order      int    `db:"stage_order" json:"order"`
	IsTerminal bool   `db:"is_terminal" json:"is_terminal"`
}

// StageList is an immutable, order-sorted stage sequence resolved for a
// school and workflow type. Safe for concurrent reads.
type StageList struct {
	WorkflowType WorkflowType      `json:"workflow_type"`
	Stages       []StageDefinition `json:"stages"`
}

// Initial returns the stage with order 0.
func (l StageList) Initial() StageDefinition {
	return l.Stages[0]
}

// Terminal returns the highest-order stage.
func (l StageList) Terminal() StageDefinition {
	return l.Stages[len(l.Stages)-1]
}

// Find returns the definition for key, or false when the key is not part
// of this list. REJECTED is a pseudo-stage and is never found here.
func (l StageList) Find(key string) (StageDefinition, bool) {
	for _, s := range l.Stages {
		if s.Key == key {
			return s, true
		}
	}
	return StageDefinition{}, false
}
