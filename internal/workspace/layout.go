// Package workspace owns the on-disk layout of a grading run.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var safeSegment = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Layout resolves per-assignment, per-submitter paths under Root.
//
//	<root>/submissions/<assignment>/<submitter>/   downloaded attachments
//	<root>/final/<assignment>/<submitter>.pdf      canonical documents
//	<root>/grades/<assignment>_grades.csv           exports
//	<root>/locks/<assignment>.lock                  run locks
type Layout struct {
	Root string
}

// New returns a layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

// SubmissionDir is where a submitter's attachments are downloaded.
func (l Layout) SubmissionDir(assignmentID, submitterID string) string {
	return filepath.Join(l.Root, "submissions", clean(assignmentID), clean(submitterID))
}

// DocumentPath is the merged canonical document of a submitter.
func (l Layout) DocumentPath(assignmentID, submitterID string) string {
	return filepath.Join(l.Root, "final", clean(assignmentID), clean(submitterID)+".pdf")
}

// GradesDir holds exported result files.
func (l Layout) GradesDir() string {
	return filepath.Join(l.Root, "grades")
}

// LockPath is the advisory lock file of an assignment.
func (l Layout) LockPath(assignmentID string) string {
	return filepath.Join(l.Root, "locks", clean(assignmentID)+".lock")
}

// Cleanup removes downloaded and merged files of an assignment once its
// results have been committed.
func (l Layout) Cleanup(assignmentID string) error {
	for _, dir := range []string{
		filepath.Join(l.Root, "submissions", clean(assignmentID)),
		filepath.Join(l.Root, "final", clean(assignmentID)),
	} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("cleanup %s: %w", dir, err)
		}
	}
	return nil
}

// clean keeps safe ids as they are. Anything rewritten gets a short hash of
// the raw id so distinct ids never share a directory.
func clean(segment string) string {
	s := safeSegment.ReplaceAllString(segment, "_")
	if s == segment && s != "" && s != "." && s != ".." {
		return s
	}
	if s == "" || s == "." || s == ".." {
		s = "_"
	}
	sum := sha256.Sum256([]byte(segment))
	return s + "-" + hex.EncodeToString(sum[:4])
}
