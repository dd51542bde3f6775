// Package audit keeps a tamper-evident journal of verification runs. Each
// JSONL line carries the hash of the line before it.
package audit

// RunEntry is one journal line. It holds only structs and slices so that
// json.Marshal output is deterministic and hashes reproduce.
type RunEntry struct {
	Timestamp      string   `json:"ts"`
	RunID          string   `json:"run_id"`
	Backend        string   `json:"backend"`
	PolicyHash     string   `json:"policy_hash"`
	GraphHash      string   `json:"graph_hash"`
	Status         string   `json:"status"`
	Constraints    int      `json:"constraints"`
	CoreSize       int      `json:"core_size"`
	CoreRules      []string `json:"core_rules,omitempty"`
	Contradictions int      `json:"contradictions,omitempty"`
	ElapsedMillis  int64    `json:"elapsed_ms"`
	PrevHash       string   `json:"prev_hash"`
}
