package scenario

import "github.com/ppiankov/enclavecheck/internal/verify"

// Case is one instance with its expected verdict. Table paths are relative
// to the scenario file unless they are absolute or carry a URL scheme.
type Case struct {
	Name         string   `yaml:"name"`
	Nodes        string   `yaml:"nodes"`
	Edges        string   `yaml:"edges"`
	Policy       string   `yaml:"policy"`
	FunctionArgs string   `yaml:"function_args,omitempty"`
	OneWay       string   `yaml:"one_way,omitempty"`
	Expect       string   `yaml:"expect"`
	ExpectRules  []string `yaml:"expect_rules,omitempty"`
}

func (c Case) inputs(resolve func(string) string) verify.Inputs {
	return verify.Inputs{
		Nodes:        resolve(c.Nodes),
		Edges:        resolve(c.Edges),
		Policy:       resolve(c.Policy),
		FunctionArgs: resolve(c.FunctionArgs),
		OneWay:       resolve(c.OneWay),
	}
}

// Scenario is a named collection of verification cases.
type Scenario struct {
	Name        string `yaml:"name"`
	MaxFnParams int    `yaml:"max_fn_params,omitempty"`
	Minimize    *bool  `yaml:"minimize,omitempty"`
	Cases       []Case `yaml:"cases"`
}

// CaseResult is the outcome of verifying one case.
type CaseResult struct {
	Index        int      `json:"index"`
	Name         string   `json:"name"`
	Passed       bool     `json:"passed"`
	Expected     string   `json:"expected"`
	Actual       string   `json:"actual"`
	MissingRules []string `json:"missing_rules,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
