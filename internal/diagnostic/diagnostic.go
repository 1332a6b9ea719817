package diagnostic

import (
	"fmt"
	"strings"
)

// Severity represents the severity level of a diagnostic message
type Severity int

const (
	Error Severity = iota
	Warning
)

// String returns the string representation of the severity level
func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// NoStmt marks a diagnostic that refers to a whole function or module
// rather than one statement.
const NoStmt = -1

// Diagnostic is a single problem found in an IR module.
type Diagnostic struct {
	Severity Severity
	Message  string
	Function string // empty for module-level problems
	Stmt     int    // statement index within the body, or NoStmt
	Hint     string // optional suggestion
}

// Location renders where the diagnostic points, e.g. "diff:2" or "diff".
func (d Diagnostic) Location() string {
	switch {
	case d.Function == "":
		return "module"
	case d.Stmt == NoStmt:
		return d.Function
	default:
		return fmt.Sprintf("%s:%d", d.Function, d.Stmt)
	}
}

// Diagnostics manages a collection of diagnostic messages
type Diagnostics struct {
	items []Diagnostic
}

// New creates a new empty Diagnostics collection
func New() *Diagnostics {
	return &Diagnostics{
		items: make([]Diagnostic, 0),
	}
}

// Errorf adds an error diagnostic with formatted message
func (d *Diagnostics) Errorf(fn string, stmt int, format string, args ...interface{}) {
	d.add(Error, fn, stmt, fmt.Sprintf(format, args...), "")
}

// Warningf adds a warning diagnostic with formatted message
func (d *Diagnostics) Warningf(fn string, stmt int, format string, args ...interface{}) {
	d.add(Warning, fn, stmt, fmt.Sprintf(format, args...), "")
}

// ErrorWithHint adds an error diagnostic with a suggestion
func (d *Diagnostics) ErrorWithHint(fn string, stmt int, msg, hint string) {
	d.add(Error, fn, stmt, msg, hint)
}

func (d *Diagnostics) add(sev Severity, fn string, stmt int, msg, hint string) {
	d.items = append(d.items, Diagnostic{
		Severity: sev,
		Message:  msg,
		Function: fn,
		Stmt:     stmt,
		Hint:     hint,
	})
}

// HasErrors returns true if there are any error-level diagnostics
func (d *Diagnostics) HasErrors() bool {
	return d.ErrorCount() > 0
}

// Errors returns only the error-level diagnostics
func (d *Diagnostics) Errors() []Diagnostic {
	errors := make([]Diagnostic, 0)
	for _, item := range d.items {
		if item.Severity == Error {
			errors = append(errors, item)
		}
	}
	return errors
}

// All returns all diagnostics regardless of severity
func (d *Diagnostics) All() []Diagnostic {
	return d.items
}

// Count returns the total number of diagnostics
func (d *Diagnostics) Count() int {
	return len(d.items)
}

// ErrorCount returns the number of error-level diagnostics
func (d *Diagnostics) ErrorCount() int {
	count := 0
	for _, item := range d.items {
		if item.Severity == Error {
			count++
		}
	}
	return count
}

// WarningCount returns the number of warning-level diagnostics
func (d *Diagnostics) WarningCount() int {
	return len(d.items) - d.ErrorCount()
}

// Format returns human-readable messages, one per line:
//
//	error[arith.yaml:diff:2]: unknown op "i32.addd"
//	  hint: did you mean "i32.add"?
//	warning[arith.yaml:diff:0]: value "a" is never used
func (d *Diagnostics) Format(filename string) string {
	if len(d.items) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, item := range d.items {
		fmt.Fprintf(&builder, "%s[%s:%s]: %s",
			item.Severity, filename, item.Location(), item.Message)
		if item.Hint != "" {
			fmt.Fprintf(&builder, "\n  hint: %s", item.Hint)
		}
		if i < len(d.items)-1 {
			builder.WriteString("\n")
		}
	}
	return builder.String()
}

// Err summarizes the errors as a single error value, or nil if there are none.
func (d *Diagnostics) Err(filename string) error {
	n := d.ErrorCount()
	if n == 0 {
		return nil
	}
	return fmt.Errorf("%s: %d error(s)\n%s", filename, n, d.Format(filename))
}
