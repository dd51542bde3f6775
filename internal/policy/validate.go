package policy

import (
	"fmt"
	"strings"

	"github.com/ppiankov/enclavecheck/internal/model"
)

const (
	nullLevel   = "nullLevel"
	nullEnclave = "nullEnclave"
	nullLabel   = "nullCleLabel"
	nullCDFName = "nullCdf"
)

// ValidationError reports the first violated well-formedness rule. Rules
// are numbered in the order they are checked.
type ValidationError struct {
	Label   string
	Rule    int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Label == "" {
		return fmt.Sprintf("policy rule %d: %s", e.Rule, e.Message)
	}
	return fmt.Sprintf("policy rule %d: %s: %s", e.Rule, e.Label, e.Message)
}

// Options carries the program facts validation needs besides the policy.
type Options struct {
	// MaxParams bounds the argument taint list of every function CDF.
	MaxParams int
	// FunctionArgs maps function labels to their actual arity.
	FunctionArgs map[string]int
	// ReturnUsed holds labels of functions whose return value the program uses.
	ReturnUsed map[string]bool
}

type cdfSpec struct {
	remote    string
	direction model.Direction
	guard     model.GuardOperation
	oneWay    bool
	hasTaints bool
	cod       []string
	ret       []string
	arg       [][]string
}

type labelSpec struct {
	name     string
	level    string
	function bool
	cdfs     []cdfSpec
}

// Validate checks entries against all well-formedness rules without
// building a model.
func Validate(entries []Entry, opts Options) error {
	_, err := validate(entries, opts)
	return err
}

func validate(entries []Entry, opts Options) ([]labelSpec, error) {
	for _, e := range entries {
		if !e.hasLabel || !e.hasBody {
			return nil, &ValidationError{Rule: 1, Message: "entries must have a label and a body"}
		}
		if _, ok := e.Label.(string); !ok {
			return nil, &ValidationError{Rule: 1, Message: fmt.Sprintf("label %v is not a string", e.Label)}
		}
		if e.body() == nil {
			return nil, &ValidationError{Label: e.labelName(), Rule: 1, Message: "body must be an object"}
		}
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.labelName()] {
			return nil, &ValidationError{Label: e.labelName(), Rule: 2, Message: "labels must be unique"}
		}
		seen[e.labelName()] = true
	}

	dataLabels := make(map[string]bool)
	for _, e := range entries {
		if !e.isFunction() {
			dataLabels[e.labelName()] = true
		}
	}

	specs := make([]labelSpec, 0, len(entries))
	for _, e := range entries {
		s, err := validateEntry(e, dataLabels, opts)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}

func validateEntry(e Entry, dataLabels map[string]bool, opts Options) (labelSpec, error) {
	label := e.labelName()
	body := e.body()
	fail := func(rule int, format string, args ...any) (labelSpec, error) {
		return labelSpec{}, &ValidationError{Label: label, Rule: rule, Message: fmt.Sprintf(format, args...)}
	}

	level, ok := body["level"].(string)
	if !ok || level == "" {
		return fail(3, "entry must have a 'level'")
	}
	if level == nullLevel {
		return fail(4, "'level' may not be %q", nullLevel)
	}

	spec := labelSpec{name: label, level: level, function: e.isFunction()}

	rawCDFs, present := body["cdf"]
	if !present {
		return spec, nil
	}
	cdfs, ok := rawCDFs.([]any)
	if !ok || len(cdfs) == 0 {
		return fail(5, "'cdf' must be a non-empty list if it is present")
	}

	var first string
	remotes := make(map[string]bool, len(cdfs))
	for i, raw := range cdfs {
		c, ok := raw.(map[string]any)
		if !ok {
			return fail(6, "cdf %d must be an object", i)
		}
		_, hasRemote := c["remotelevel"]
		_, hasDir := c["direction"]
		_, hasGuard := c["guarddirective"]
		if !hasRemote || !hasDir || !hasGuard {
			return fail(6, "'cdf' must have a 'remotelevel', 'direction', and 'guarddirective'")
		}
		remote, ok := c["remotelevel"].(string)
		if !ok || remote == "" {
			return fail(6, "'remotelevel' must name a level")
		}
		if remote == nullLevel {
			return fail(7, "'remotelevel' may not be %q", nullLevel)
		}

		oneWay, _ := c["oneway"].(bool)
		if oneWay && opts.ReturnUsed[label] {
			return fail(8, "'oneway' cdf associated with a function whose return value is used")
		}

		dirName, _ := c["direction"].(string)
		dir, ok := model.ParseDirection(dirName)
		if !ok {
			return fail(9, "'direction' must be one of 'ingress', 'egress', 'bidirectional'")
		}

		gd, _ := c["guarddirective"].(map[string]any)
		opName, _ := gd["operation"].(string)
		guard, ok := model.ParseGuardOperation(opName)
		if !ok {
			return fail(10, "'guarddirective' must have 'operation' which is 'allow', 'redact', or 'deny'")
		}

		cs := cdfSpec{remote: remote, direction: dir, guard: guard, oneWay: oneWay}

		_, hasArg := c["argtaints"]
		_, hasCod := c["codtaints"]
		_, hasRet := c["rettaints"]
		anyTaints := hasArg || hasCod || hasRet
		if anyTaints && !(hasArg && hasCod && hasRet) {
			return fail(11, "'cdf' must have all taint types or no taints")
		}

		if anyTaints {
			cod, okCod := stringList(c["codtaints"])
			ret, okRet := stringList(c["rettaints"])
			arg, okArg := stringLists(c["argtaints"])
			if !okCod || !okRet || !okArg {
				return fail(12, "taints must be lists")
			}

			all := append(append([]string{}, cod...), ret...)
			for _, a := range arg {
				all = append(all, a...)
			}
			for _, t := range all {
				if !dataLabels[t] && !isTag(t) {
					return fail(13, "taint %q must be a data label or '%s<suffix>'/'%s<suffix>'", t, requestTagPrefix, responseTagPrefix)
				}
			}

			if len(arg) > opts.MaxParams {
				return fail(14, "'argtaints' length may not exceed maximum function args (%d)", opts.MaxParams)
			}
			if n, ok := opts.FunctionArgs[label]; ok && len(arg) != n {
				return fail(15, "'argtaints' length must match actual number of function arguments (%d)", n)
			}

			cs.hasTaints = true
			cs.cod, cs.ret, cs.arg = cod, ret, arg
		}

		sig := cs.signature()
		if i == 0 {
			first = sig
		} else if sig != first {
			return fail(16, "cdfs for a label must all have identical taints")
		}

		if remotes[remote] {
			return fail(17, "cdf 'remotelevel' values must be unique")
		}
		remotes[remote] = true

		spec.cdfs = append(spec.cdfs, cs)
	}
	return spec, nil
}

func (c cdfSpec) signature() string {
	if !c.hasTaints {
		return "-"
	}
	args := make([]string, len(c.arg))
	for i, a := range c.arg {
		args[i] = strings.Join(a, ",")
	}
	return strings.Join(c.cod, ",") + "|" + strings.Join(c.ret, ",") + "|" + strings.Join(args, ";")
}

func stringList(v any) ([]string, bool) {
	l, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(l))
	for _, item := range l {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func stringLists(v any) ([][]string, bool) {
	l, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([][]string, 0, len(l))
	for _, item := range l {
		s, ok := stringList(item)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
