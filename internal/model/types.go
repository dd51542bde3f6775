package model

import "fmt"

// GuardOperation is the decision a cross-domain flow rule applies to data
// leaving its level.
type GuardOperation int

const (
	GuardNull GuardOperation = iota
	GuardAllow
	GuardRedact
	GuardDeny
)

var guardNames = [...]string{
	GuardNull:   "nullGuardOperation",
	GuardAllow:  "allow",
	GuardRedact: "redact",
	GuardDeny:   "deny",
}

func (g GuardOperation) String() string {
	if g < 0 || int(g) >= len(guardNames) {
		return fmt.Sprintf("GuardOperation(%d)", int(g))
	}
	return guardNames[g]
}

// Permits reports whether data may cross the boundary under this operation.
// Redaction permits the flow; the guard rewrites the payload on the way.
func (g GuardOperation) Permits() bool {
	return g == GuardAllow || g == GuardRedact
}

// ParseGuardOperation maps a policy operation name. The null operation is
// never accepted from input.
func ParseGuardOperation(s string) (GuardOperation, bool) {
	switch s {
	case "allow":
		return GuardAllow, true
	case "redact":
		return GuardRedact, true
	case "deny":
		return GuardDeny, true
	}
	return GuardNull, false
}

// Direction is the declared flow direction of a cross-domain flow rule.
type Direction int

const (
	DirectionNull Direction = iota
	DirectionEgress
	DirectionIngress
	DirectionBidirectional
)

var directionNames = [...]string{
	DirectionNull:          "nullDirection",
	DirectionEgress:        "egress",
	DirectionIngress:       "ingress",
	DirectionBidirectional: "bidirectional",
}

func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// ParseDirection maps a policy direction name.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "egress":
		return DirectionEgress, true
	case "ingress":
		return DirectionIngress, true
	case "bidirectional":
		return DirectionBidirectional, true
	}
	return DirectionNull, false
}

// Status is the outcome of a verification run.
type Status string

const (
	Satisfiable   Status = "SATISFIABLE"
	Unsatisfiable Status = "UNSATISFIABLE"
)

// Kind identifies the entity a named constraint is attached to.
type Kind string

const (
	KindNode   Kind = "node"
	KindEdge   Kind = "edge"
	KindPolicy Kind = "policy"
)

// Assignment is the enclave and taint chosen for one graph node.
type Assignment struct {
	Node    int    `json:"node"`
	Enclave string `json:"enclave"`
	Taint   string `json:"taint"`
}
