// Package history implements the History Store (§4.1): a thin,
// append-oriented persistence layer for a project's session logs. It
// writes one JSON record per message, JSONL-style, grounded on the
// ancestor codebase's internal/agent.TracePlugin/TraceReader idiom, but
// performs whole-file rewrites rather than true appends since the log is
// small and the format favors robustness over append-speed (§4.1).
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/soapbox-pub/shakespeare-sub004/internal/shakeserr"
	"github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"
)

// Store persists and restores message logs under <projectDir>/.git/ai/.
type Store struct{}

// New creates a Store. It holds no state; every operation takes the
// project directory explicitly.
func New() *Store { return &Store{} }

func aiDir(projectDir string) string {
	return filepath.Join(projectDir, ".git", "ai")
}

func historyDir(projectDir string) string {
	return filepath.Join(aiDir(projectDir), "history")
}

func sessionPath(projectDir, sessionName string) string {
	return filepath.Join(historyDir(projectDir), sessionName+".jsonl")
}

// LastSession is the result of ReadLastSession.
type LastSession struct {
	Messages    []shakes.Message
	SessionName string
}

// ReadLastSession lists the history directory's .jsonl files, takes the
// lexicographically last (session names are timestamp-prefixed, so this is
// also the most recent), and parses it line by line. Malformed lines are
// skipped with a warning, not fatal. Returns nil if no history exists.
func (s *Store) ReadLastSession(projectDir string) (*LastSession, error) {
	entries, err := os.ReadDir(historyDir(projectDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &shakeserr.PersistenceError{Op: "readdir", Path: historyDir(projectDir), Cause: err}
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	sort.Strings(names)
	last := names[len(names)-1]
	sessionName := strings.TrimSuffix(last, ".jsonl")

	messages, err := s.readMessages(filepath.Join(historyDir(projectDir), last))
	if err != nil {
		return nil, err
	}
	return &LastSession{Messages: messages, SessionName: sessionName}, nil
}

func (s *Store) readMessages(path string) ([]shakes.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &shakeserr.PersistenceError{Op: "open", Path: path, Cause: err}
	}
	defer f.Close()

	var messages []shakes.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var msg shakes.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			// Skipped with a warning, not fatal, per §4.1.
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// WriteSession validates messages via the Message Validator and, on
// success, rewrites the session's entire log file. Validation failures
// are raised synchronously and never reach disk.
func (s *Store) WriteSession(projectDir, sessionName string, messages []shakes.Message) error {
	if err := shakes.Validate(messages); err != nil {
		return &shakeserr.ProtocolError{Cause: err}
	}

	dir := historyDir(projectDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &shakeserr.PersistenceError{Op: "mkdir", Path: dir, Cause: err}
	}

	var b strings.Builder
	for _, msg := range messages {
		line, err := json.Marshal(msg)
		if err != nil {
			return &shakeserr.PersistenceError{Op: "marshal", Path: sessionPath(projectDir, sessionName), Cause: err}
		}
		b.Write(line)
		b.WriteByte('\n')
	}

	path := sessionPath(projectDir, sessionName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return &shakeserr.PersistenceError{Op: "write", Path: path, Cause: err}
	}
	return nil
}

// ReadModel reads the single-line model identifier from .git/ai/MODEL.
func (s *Store) ReadModel(projectDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(aiDir(projectDir), "MODEL"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", &shakeserr.PersistenceError{Op: "read", Path: "MODEL", Cause: err}
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteModel persists the model identifier to .git/ai/MODEL.
func (s *Store) WriteModel(projectDir, modelID string) error {
	dir := aiDir(projectDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &shakeserr.PersistenceError{Op: "mkdir", Path: dir, Cause: err}
	}
	path := filepath.Join(dir, "MODEL")
	if err := os.WriteFile(path, []byte(modelID+"\n"), 0o644); err != nil {
		return &shakeserr.PersistenceError{Op: "write", Path: path, Cause: err}
	}
	return nil
}

// ReadParameters parses .git/ai/PARAMETERS as KEY=VALUE lines; '#'
// introduces a comment, blank lines are ignored, whitespace is trimmed
// around both sides of '='.
func (s *Store) ReadParameters(projectDir string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(aiDir(projectDir), "PARAMETERS"))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, &shakeserr.PersistenceError{Op: "read", Path: "PARAMETERS", Cause: err}
	}

	params := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		params[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return params, nil
}

// WriteParameters persists params as KEY=VALUE lines to .git/ai/PARAMETERS.
func (s *Store) WriteParameters(projectDir string, params map[string]string) error {
	dir := aiDir(projectDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &shakeserr.PersistenceError{Op: "mkdir", Path: dir, Cause: err}
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, params[k])
	}

	path := filepath.Join(dir, "PARAMETERS")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return &shakeserr.PersistenceError{Op: "write", Path: path, Cause: err}
	}
	return nil
}
