// Package diag is the append-only diagnostics log shared by every stage of the
// content spec pipeline. Entries are a severity, a kind, a source line and a message;
// formatting for humans is left to the caller.
package diag

import (
	"errors"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring"
)

// Stage failure sentinels. Pipelines wrap these so callers can use errors.Is.
var (
	ErrParse       = errors.New("content spec failed to parse")
	ErrStructural  = errors.New("content spec failed structural validation")
	ErrReferential = errors.New("content spec failed referential validation")
	ErrResolution  = errors.New("topic resolution failed")
	ErrPersistence = errors.New("topic persistence failed")
)

// Severity ranks a log entry. Only errors fail a stage.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARN"
	case SeverityError:
		return "ERROR"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Kind is the error taxonomy of the pipeline.
type Kind int

const (
	KindParse Kind = iota
	KindStructural
	KindReferential
	KindResolution
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "ParseError"
	case KindStructural:
		return "StructuralValidationError"
	case KindReferential:
		return "ReferentialValidationError"
	case KindResolution:
		return "ResolutionError"
	case KindPersistence:
		return "PersistenceError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinel returns the stage sentinel error matching the kind.
func (k Kind) Sentinel() error {
	switch k {
	case KindParse:
		return ErrParse
	case KindStructural:
		return ErrStructural
	case KindReferential:
		return ErrReferential
	case KindResolution:
		return ErrResolution
	default:
		return ErrPersistence
	}
}

// Entry is one diagnostic. Line is 1-based; 0 means the entry is not tied to a line.
type Entry struct {
	Severity Severity
	Kind     Kind
	Line     int
	Message  string
}

func (e Entry) String() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s line %d: %s", e.Severity, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Severity, e.Message)
}

// Log accumulates diagnostics. The zero value is ready to use.
// A Log is owned by a single pipeline run and is not safe for concurrent use.
type Log struct {
	entries []Entry
}

func (l *Log) add(sev Severity, kind Kind, line int, format string, args ...any) {
	l.entries = append(l.entries, Entry{
		Severity: sev,
		Kind:     kind,
		Line:     line,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Errorf records an error.
func (l *Log) Errorf(kind Kind, line int, format string, args ...any) {
	l.add(SeverityError, kind, line, format, args...)
}

// Warnf records a warning.
func (l *Log) Warnf(kind Kind, line int, format string, args ...any) {
	l.add(SeverityWarning, kind, line, format, args...)
}

// Infof records an informational entry.
func (l *Log) Infof(kind Kind, line int, format string, args ...any) {
	l.add(SeverityInfo, kind, line, format, args...)
}

// Entries returns a copy of the recorded entries in insertion order.
func (l *Log) Entries() []Entry {
	return slices.Clone(l.entries)
}

// Len returns the number of entries of any severity.
func (l *Log) Len() int { return len(l.entries) }

// Count returns the number of entries with the given severity.
func (l *Log) Count(sev Severity) int {
	n := 0
	for _, e := range l.entries {
		if e.Severity == sev {
			n++
		}
	}
	return n
}

// HasErrors reports whether any error has been recorded.
func (l *Log) HasErrors() bool { return l.Count(SeverityError) > 0 }

// HasErrorsOfKind reports whether an error of the given kind has been recorded.
func (l *Log) HasErrorsOfKind(kind Kind) bool {
	for _, e := range l.entries {
		if e.Severity == SeverityError && e.Kind == kind {
			return true
		}
	}
	return false
}

// ErrorLines returns the set of source lines that carry at least one error.
func (l *Log) ErrorLines() *roaring.Bitmap {
	bm := roaring.New()
	for _, e := range l.entries {
		if e.Severity == SeverityError && e.Line > 0 {
			bm.Add(uint32(e.Line))
		}
	}
	return bm
}

// Err returns nil when no error of the given kind was recorded, otherwise the kind's
// sentinel wrapped with an error count.
func (l *Log) Err(kind Kind) error {
	n := 0
	for _, e := range l.entries {
		if e.Severity == SeverityError && e.Kind == kind {
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d error(s)", kind.Sentinel(), n)
}
