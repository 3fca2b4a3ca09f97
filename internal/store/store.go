// Package store holds pipeline artifacts (uploaded file, results JSON,
// rendered report) under a sandboxed temp root, keyed by submission id and
// bound to a TTL. Retrieval is byte-safe and path-traversal-safe: client
// input never determines a filesystem path beyond the final filename token.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind names an artifact category within a submission.
type Kind string

const (
	KindUpload  Kind = "upload"
	KindResults Kind = "results"
	KindReport  Kind = "report"
)

var (
	ErrInvalidToken      = errors.New("invalid artifact token")
	ErrOutsideRoot       = errors.New("path escapes artifact root")
	ErrNotFound          = errors.New("artifact not found")
	ErrInvalidSubmission = errors.New("invalid submission id")
)

// submissionIDPattern matches the ids we mint (UUIDs) and nothing that could
// smuggle a separator or glob into a filename.
var submissionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,127}$`)

// Store is the filesystem half of the artifact store. No locking is needed:
// no two submissions ever share a filename, and artifacts for one submission
// are idempotently overwritable.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the resolved artifact root.
func (s *Store) Root() string { return s.root }

// Filename builds the canonical artifact filename. The submission id appears
// as a complete token bounded by "-" and ".", so one id can never
// prefix-collide with another submission's files.
func Filename(kind Kind, submissionID, ext string) string {
	if !strings.HasPrefix(ext, ".") && ext != "" {
		ext = "." + ext
	}
	return fmt.Sprintf("%s-%s%s", kind, submissionID, ext)
}

// Save writes one artifact and returns its retrieval token (the filename).
func (s *Store) Save(kind Kind, submissionID, ext string, data []byte) (string, error) {
	if !submissionIDPattern.MatchString(submissionID) {
		return "", ErrInvalidSubmission
	}
	name := Filename(kind, submissionID, ext)
	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", name, err)
	}
	return name, nil
}

// ResolveToken validates a caller-supplied token as a bare filename: no path
// separators, no leading dot, nothing filepath.Clean would rewrite.
func ResolveToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidToken
	}
	if strings.ContainsAny(token, "/\\") || strings.HasPrefix(token, ".") {
		return ErrInvalidToken
	}
	if filepath.Clean(token) != token {
		return ErrInvalidToken
	}
	return nil
}

// Path resolves a token to an absolute path inside the root, rejecting
// anything that would escape the sandbox.
func (s *Store) Path(token string) (string, error) {
	if err := ResolveToken(token); err != nil {
		return "", err
	}
	p := filepath.Join(s.root, token)
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel != token || strings.HasPrefix(rel, "..") {
		return "", ErrOutsideRoot
	}
	return p, nil
}

// Read returns an artifact's bytes by token.
func (s *Store) Read(token string) ([]byte, error) {
	p, err := s.Path(token)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return blob, nil
}

// Purge deletes every artifact belonging to one submission. Deletion is
// best-effort: the first error is returned for logging but remaining files
// are still attempted.
func (s *Store) Purge(submissionID string) error {
	if !submissionIDPattern.MatchString(submissionID) {
		return ErrInvalidSubmission
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}
	var firstErr error
	for _, e := range entries {
		if e.IsDir() || !belongsTo(e.Name(), submissionID) {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, e.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// belongsTo matches the submission id as a complete token between the kind
// prefix and the extension — never a substring match.
func belongsTo(filename, submissionID string) bool {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	i := strings.Index(base, "-")
	if i < 0 {
		return false
	}
	return base[i+1:] == submissionID
}
