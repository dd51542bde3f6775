package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// GenesisHash is the prev_hash of the first entry of a journal.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// TimestampFormat is the layout of entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Journal appends hash-chained run entries to a file.
type Journal struct {
	mu   sync.Mutex
	f    *os.File
	tail string
}

// Open opens path for appending, creating it and its directory as needed.
// An existing journal is scanned so new entries continue its chain.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	tail, err := chainTail(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open journal: %w", err)
	}
	return &Journal{f: f, tail: tail}, nil
}

func chainTail(path string) (string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("audit: read journal: %w", err)
	}
	defer f.Close()

	tail := GenesisHash
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			tail = HashLine(sc.Bytes())
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("audit: scan journal: %w", err)
	}
	return tail, nil
}

// Append chains e onto the journal and syncs it to disk. A missing
// timestamp is filled with the current UTC time.
func (j *Journal) Append(e RunEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	e.PrevHash = j.tail

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := j.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	j.tail = HashLine(line)
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// HashLine returns "sha256:<hex>" of line.
func HashLine(line []byte) string {
	sum := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(sum[:])
}
