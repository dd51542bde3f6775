package policy

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one raw policy entry: a label and its body. The body is kept as
// decoded generic values so validation can observe type errors.
type Entry struct {
	Label any
	Body  any

	hasLabel bool
	hasBody  bool
}

var (
	labelKeys = []string{"cle-label", "label"}
	bodyKeys  = []string{"cle-json", "body"}
)

// Parse decodes a policy document. JSON documents are accepted since YAML is
// a superset of the JSON the extractor collates.
func Parse(data []byte) ([]Entry, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	list, ok := doc.([]any)
	if !ok {
		return nil, fmt.Errorf("failed to parse policy: top level must be a list of entries")
	}

	entries := make([]Entry, 0, len(list))
	for _, item := range list {
		var e Entry
		if m, ok := item.(map[string]any); ok {
			e.Label, e.hasLabel = lookup(m, labelKeys)
			e.Body, e.hasBody = lookup(m, bodyKeys)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func lookup(m map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// labelName returns the entry label for messages, or "" when it is not a
// string.
func (e Entry) labelName() string {
	s, _ := e.Label.(string)
	return s
}

func (e Entry) body() map[string]any {
	m, _ := e.Body.(map[string]any)
	return m
}

// cdfList returns the raw CDF list of an entry body.
func (e Entry) cdfList() []any {
	l, _ := e.body()["cdf"].([]any)
	return l
}

// isFunction reports whether the entry annotates a function: its first CDF
// declares taint sets.
func (e Entry) isFunction() bool {
	cdfs := e.cdfList()
	if len(cdfs) == 0 {
		return false
	}
	first, ok := cdfs[0].(map[string]any)
	if !ok {
		return false
	}
	_, has := first["codtaints"]
	return has
}

const (
	requestTagPrefix  = "TAG_REQUEST_"
	responseTagPrefix = "TAG_RESPONSE_"
)

func isTag(name string) bool {
	return strings.HasPrefix(name, requestTagPrefix) || strings.HasPrefix(name, responseTagPrefix)
}
