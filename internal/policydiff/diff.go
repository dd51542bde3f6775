// Package policydiff compares two policies label by label and flow rule by
// flow rule.
package policydiff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/enclavecheck/internal/model"
	"github.com/ppiankov/enclavecheck/internal/policy"
)

// Change represents a scalar field change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// RuleChange represents a flow rule addition, removal, or modification.
type RuleChange struct {
	Type    string `json:"type"` // "added", "removed", "changed"
	Rule    string `json:"rule"`
	Comment string `json:"comment,omitempty"`
}

// DiffResult holds the comparison of two policies.
type DiffResult struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	Changes     []Change     `json:"changes"`
	RuleChanges []RuleChange `json:"rule_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two policy models. Synthetic labels are ignored.
func Diff(old, new *policy.Model) *DiffResult {
	r := &DiffResult{}

	diffSet(r, "levels", old.Levels()[1:], new.Levels()[1:])

	oldLabels, newLabels := labels(old), labels(new)
	diffSet(r, "labels", sortedKeys(oldLabels), sortedKeys(newLabels))
	for _, name := range sortedKeys(newLabels) {
		o, ok := oldLabels[name]
		if !ok {
			continue
		}
		n := newLabels[name]
		if ol, nl := old.Level(o.Level), new.Level(n.Level); ol != nl {
			r.Changes = append(r.Changes, Change{Field: "labels." + name + ".level", Old: ol, New: nl})
		}
		if o.Function != n.Function {
			r.Changes = append(r.Changes, Change{
				Field: "labels." + name + ".function",
				Old:   fmt.Sprintf("%t", o.Function),
				New:   fmt.Sprintf("%t", n.Function),
			})
		}
	}

	diffRules(r, rules(old), rules(new))

	r.HasChanges = len(r.Changes) > 0 || len(r.RuleChanges) > 0
	return r
}

func labels(m *policy.Model) map[string]policy.Label {
	out := make(map[string]policy.Label)
	for i, l := range m.Labels() {
		if i == policy.NullLabel || l.Synthetic {
			continue
		}
		out[l.Name] = l
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// rule is a flow rule resolved to names, comparable across models.
type rule struct {
	owner  string
	remote string
	dir    model.Direction
	guard  model.GuardOperation
	oneWay bool
	taints string
}

func (c rule) key() string { return c.owner + "|" + c.remote }

func (c rule) label() string {
	return fmt.Sprintf("%s -> %s (%s)", c.owner, c.remote, c.dir)
}

func rules(m *policy.Model) map[string]rule {
	out := make(map[string]rule)
	for i, c := range m.CDFs() {
		if i == policy.NullCDF {
			continue
		}
		r := rule{
			owner:  m.Label(c.Owner).Name,
			remote: m.Level(c.Remote),
			dir:    c.Direction,
			guard:  c.Guard,
			oneWay: c.OneWay,
			taints: taintSignature(m, i),
		}
		out[r.key()] = r
	}
	return out
}

// taintSignature renders the argument, code and return taints of a CDF.
func taintSignature(m *policy.Model, cdf int) string {
	collect := func(in func(l int) bool) string {
		var names []string
		for l := 1; l < m.NumLabels(); l++ {
			if in(l) {
				names = append(names, m.Label(l).Name)
			}
		}
		return "[" + strings.Join(names, " ") + "]"
	}
	var args []string
	for p := 0; p < m.MaxParams(); p++ {
		args = append(args, collect(func(l int) bool { return m.ArgTaint(cdf, p, l) }))
	}
	for len(args) > 0 && args[len(args)-1] == "[]" {
		args = args[:len(args)-1]
	}
	return fmt.Sprintf("arg=%s cod=%s ret=%s",
		strings.Join(args, ""),
		collect(func(l int) bool { return m.CodTaint(cdf, l) }),
		collect(func(l int) bool { return m.RetTaint(cdf, l) }))
}

// guardRank orders guard operations from most to least permissive.
func guardRank(g model.GuardOperation) int {
	switch g {
	case model.GuardAllow:
		return 1
	case model.GuardRedact:
		return 2
	case model.GuardDeny:
		return 3
	}
	return 0
}

func guardComment(old, new model.GuardOperation) string {
	if guardRank(new) > guardRank(old) {
		return "stricter"
	}
	return "looser"
}

func diffRules(r *DiffResult, oldRules, newRules map[string]rule) {
	for _, k := range sortedKeys(newRules) {
		nr := newRules[k]
		or, exists := oldRules[k]
		if !exists {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "added",
				Rule: fmt.Sprintf("%s → %s", nr.label(), nr.guard),
			})
			continue
		}
		if or.guard != nr.guard {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type:    "changed",
				Rule:    fmt.Sprintf("%s → %s (was: %s)", nr.label(), nr.guard, or.guard),
				Comment: guardComment(or.guard, nr.guard),
			})
		}
		if or.dir != nr.dir {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "changed",
				Rule: fmt.Sprintf("%s direction (was: %s)", nr.label(), or.dir),
			})
		}
		if or.oneWay != nr.oneWay {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "changed",
				Rule: fmt.Sprintf("%s oneway %t (was: %t)", nr.label(), nr.oneWay, or.oneWay),
			})
		}
		if or.taints != nr.taints {
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "changed",
				Rule: fmt.Sprintf("%s taints %s (was: %s)", nr.label(), nr.taints, or.taints),
			})
		}
	}

	for _, k := range sortedKeys(oldRules) {
		if _, exists := newRules[k]; !exists {
			or := oldRules[k]
			r.RuleChanges = append(r.RuleChanges, RuleChange{
				Type: "removed",
				Rule: fmt.Sprintf("%s → %s", or.label(), or.guard),
			})
		}
	}
}

func diffSet(r *DiffResult, section string, oldKeys, newKeys []string) {
	oldSet := make(map[string]bool)
	for _, k := range oldKeys {
		oldSet[k] = true
	}
	newSet := make(map[string]bool)
	for _, k := range newKeys {
		newSet[k] = true
	}

	for _, k := range newKeys {
		if !oldSet[k] {
			r.Changes = append(r.Changes, Change{
				Field:   section,
				New:     k,
				Comment: "added",
			})
		}
	}
	for _, k := range oldKeys {
		if !newSet[k] {
			r.Changes = append(r.Changes, Change{
				Field:   section,
				Old:     k,
				Comment: "removed",
			})
		}
	}
}
