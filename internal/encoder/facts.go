package encoder

import (
	"strconv"

	"github.com/go-air/gini/z"

	"github.com/ppiankov/enclavecheck/internal/model"
	"github.com/ppiankov/enclavecheck/internal/policy"
)

// Policy facts are literals pinned to their table value by a policy-kind
// constraint. Formulas reference the literal, so a core that depends on a
// table entry names it.

func (e *Encoding) fact(rule string, args []string, value bool, assertion string) z.Lit {
	key := rule
	for _, a := range args {
		key += "\x00" + a
	}
	if m, ok := e.facts[key]; ok {
		return m
	}
	m := e.c.Lit()
	e.facts[key] = m
	if value {
		e.assert(model.KindPolicy, rule, 0, args, m, assertion)
	} else {
		e.assert(model.KindPolicy, rule, 0, args, m.Not(), assertion)
	}
	return m
}

func yesNo(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

func (e *Encoding) levelFact(l int) z.Lit {
	name, level := e.labelName(l), e.policy.Level(e.policy.Label(l).Level)
	return e.fact("hasLabelLevel", []string{name, level}, true,
		sx("(= (hasLabelLevel %s) %s)", name, level))
}

func (e *Encoding) functionFact(l int) z.Lit {
	v := e.policy.Label(l).Function
	name := e.labelName(l)
	return e.fact("isFunctionAnnotation", []string{name, yesNo(v, "", "not ")}, v,
		sx("(= (isFunctionAnnotation %s) %t)", name, v))
}

// cdfFact is true when label has a CDF towards level.
func (e *Encoding) cdfFact(l, level int) (z.Lit, int) {
	cdf := e.policy.CDFFor(l, level)
	name, cdfName, levelName := e.labelName(l), e.policy.CDF(cdf).ID, e.policy.Level(level)
	m := e.fact("cdfForRemoteLevel", []string{name, cdfName, levelName}, cdf != policy.NullCDF,
		sx("(= (cdfForRemoteLevel %s %s) %s)", name, levelName, cdfName))
	return m, cdf
}

func (e *Encoding) guardFact(cdf int) z.Lit {
	c := e.policy.CDF(cdf)
	return e.fact("hasGuardOperation", []string{c.ID, c.Guard.String()}, c.Guard.Permits(),
		sx("(= (hasGuardOperation %s) %s)", c.ID, c.Guard))
}

func (e *Encoding) retFact(cdf, l int) z.Lit {
	v := e.policy.RetTaint(cdf, l)
	id, name := e.policy.CDF(cdf).ID, e.labelName(l)
	return e.fact("hasRettaints", []string{id, yesNo(v, "has", "does not have"), name}, v,
		sx("(= (hasRettaints %s %s) %t)", id, name, v))
}

func (e *Encoding) arcFact(cdf, l int) z.Lit {
	v := e.policy.ARCTaint(cdf, l)
	id, name := e.policy.CDF(cdf).ID, e.labelName(l)
	return e.fact("hasARCtaints", []string{id, yesNo(v, "has", "does not have"), name}, v,
		sx("(= (hasARCtaints %s %s) %t)", id, name, v))
}

func (e *Encoding) argFact(cdf, param, l int) z.Lit {
	v := e.policy.ArgTaint(cdf, param, l)
	id, name, p := e.policy.CDF(cdf).ID, e.labelName(l), strconv.Itoa(param)
	return e.fact("hasArgtaints", []string{id, yesNo(v, "has", "does not have"), name, p}, v,
		sx("(= (hasArgtaints %s %s %s) %t)", id, p, name, v))
}

func (e *Encoding) pinnedFact(class int) z.Lit {
	id := strconv.Itoa(class)
	return e.fact("isPinned", []string{id, "is pinned and is not eligible"}, true,
		sx("(= (isPinned %s) true)", id))
}

// permits holds when label has a CDF towards level whose guard allows or
// redacts.
func (e *Encoding) permits(l, level int) z.Lit {
	has, cdf := e.cdfFact(l, level)
	if cdf == policy.NullCDF {
		return has
	}
	return e.c.And(has, e.guardFact(cdf))
}

// inRet holds when taint is a return taint of the CDF of fn towards level.
func (e *Encoding) inRet(fn, level, taint int) z.Lit {
	has, cdf := e.cdfFact(fn, level)
	if cdf == policy.NullCDF {
		return has
	}
	return e.c.And(has, e.retFact(cdf, taint))
}

// inArg holds when taint is allowed for argument param of fn's CDF towards
// level.
func (e *Encoding) inArg(fn, level, param, taint int) z.Lit {
	has, cdf := e.cdfFact(fn, level)
	if cdf == policy.NullCDF || param < 0 {
		return e.c.And(has, e.c.F)
	}
	return e.c.And(has, e.argFact(cdf, param, taint))
}

// inARC holds when fn is a function annotation whose CDF towards level
// lists taint among its argument, return or code taints.
func (e *Encoding) inARC(fn, level, taint int) z.Lit {
	isFn := e.functionFact(fn)
	has, cdf := e.cdfFact(fn, level)
	if cdf == policy.NullCDF {
		return e.c.And(isFn, has)
	}
	return e.c.Ands(isFn, has, e.arcFact(cdf, taint))
}
