package encoder

import (
	"errors"
	"fmt"
)

// ErrIndeterminate is returned when the solver stops without a verdict.
var ErrIndeterminate = errors.New("encoder: solver returned neither sat nor unsat")

// UnknownLabelError reports a node annotated with a label the policy does not
// define.
type UnknownLabelError struct {
	Node  int
	Label string
}

func (e *UnknownLabelError) Error() string {
	return fmt.Sprintf("encoder: node %d carries label %q which the policy does not define", e.Node, e.Label)
}

// Contradiction is a model inconsistency found before solving. Any
// contradiction makes the instance unsatisfiable.
type Contradiction struct {
	Rule      string `json:"rule"`
	Edge      int    `json:"edge"`
	Assertion string `json:"assertion"`
}

func (c Contradiction) String() string {
	return fmt.Sprintf("%s on edge %d", c.Rule, c.Edge)
}
