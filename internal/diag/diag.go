// Package diag implements the Nyx toolchain's error taxonomy (spec §7):
// a single Diagnostic type shared by build-time and VM-level failures,
// generalizing the teacher's SentraError (internal/errors) from a
// security-scanner's syntax/runtime split to the full
// Lex/Parse/Compile/Lift/Borrow/TypeInference/Runtime/Module kind set.
// Causes are chained with github.com/pkg/errors instead of stdlib
// errors.Is/As alone, because %+v stack-trace rendering (used by a
// --verbose dump) needs the original wrapped cause, not just a
// recoverable sentinel.
package diag

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind identifies which stage of the toolchain raised a Diagnostic.
type Kind string

const (
	KindLexError            Kind = "LexError"
	KindParseError          Kind = "ParseError"
	KindCompileError        Kind = "CompileError"
	KindLiftingError        Kind = "LiftingError"
	KindBorrowError         Kind = "BorrowError"
	KindTypeInferenceError  Kind = "TypeInferenceError"
	KindTypeError           Kind = "TypeError"
	KindReferenceError      Kind = "ReferenceError"
	KindRangeError          Kind = "RangeError"
	KindGenericError        Kind = "Error"
	KindModuleError         Kind = "ModuleError"
	KindStackOverflow       Kind = "StackOverflow"
)

// BorrowSubkind enumerates the four ways the borrow checker (C10) rejects
// a program (spec §4.8, §7).
type BorrowSubkind string

const (
	UseAfterMove             BorrowSubkind = "UseAfterMove"
	OverlappingMutableBorrow BorrowSubkind = "OverlappingMutableBorrow"
	EscapingBorrow           BorrowSubkind = "EscapingBorrow"
	MovedCapture             BorrowSubkind = "MovedCapture"
)

// ModuleSubkind enumerates why ImportAsync failed (spec §4.5.1, §7).
type ModuleSubkind string

const (
	ModuleNotFound      ModuleSubkind = "NotFound"
	ModuleParseFailure  ModuleSubkind = "ParseFailure"
	ModuleCyclicPartial ModuleSubkind = "CyclicPartial"
	ModuleExportMissing ModuleSubkind = "ExportMissing"
)

// ReferenceSubkind enumerates the two ReferenceError shapes (spec §7).
type ReferenceSubkind string

const (
	RefNotFound      ReferenceSubkind = "NotFound"
	RefExportMissing ReferenceSubkind = "ExportMissing"
)

// SourceLocation pinpoints a Diagnostic to a file/line/column, mirroring
// the teacher's errors.SourceLocation.
type SourceLocation struct {
	File   string
	Line   int
	Column int
}

// StackFrame is one entry of a runtime call-stack snapshot, mirroring the
// teacher's errors.StackFrame.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Diagnostic is every error this toolchain surfaces, whether at build
// time (Lex/Parse/Compile/Lifting/Borrow/TypeInference) or at VM runtime
// (thrown exceptions, module failures, stack overflow).
type Diagnostic struct {
	Kind      Kind
	Subkind   string // BorrowSubkind/ModuleSubkind/ReferenceSubkind, "" if not applicable
	Message   string
	Location  SourceLocation
	CallStack []StackFrame
	Source    string // offending source line, if known
	DepChain  []string // module dependency_chain for ModuleError

	cause error
}

func (d *Diagnostic) Error() string {
	var sb strings.Builder
	if d.Subkind != "" {
		fmt.Fprintf(&sb, "%s(%s): %s", d.Kind, d.Subkind, d.Message)
	} else {
		fmt.Fprintf(&sb, "%s: %s", d.Kind, d.Message)
	}
	if d.Location.File != "" {
		fmt.Fprintf(&sb, "\n  at %s:%d:%d", d.Location.File, d.Location.Line, d.Location.Column)
		if d.Source != "" {
			fmt.Fprintf(&sb, "\n  %d | %s", d.Location.Line, d.Source)
			if d.Location.Column > 0 {
				sb.WriteString("\n  " + strings.Repeat(" ", len(fmt.Sprintf("%d | ", d.Location.Line))+d.Location.Column-1) + "^")
			}
		}
	}
	for _, f := range d.CallStack {
		if f.Function != "" {
			fmt.Fprintf(&sb, "\n  at %s (%s:%d)", f.Function, f.File, f.Line)
		} else {
			fmt.Fprintf(&sb, "\n  at %s:%d", f.File, f.Line)
		}
	}
	if len(d.DepChain) > 0 {
		fmt.Fprintf(&sb, "\n  dependency chain: %s", strings.Join(d.DepChain, " -> "))
	}
	return sb.String()
}

// Cause returns the wrapped underlying error, if any, for errors.Cause
// and %+v stack-trace rendering.
func (d *Diagnostic) Cause() error { return d.cause }

// Unwrap lets stdlib errors.Is/As traverse into the wrapped cause too.
func (d *Diagnostic) Unwrap() error { return d.cause }

func newAt(kind Kind, msg, file string, line, col int) *Diagnostic {
	return &Diagnostic{Kind: kind, Message: msg, Location: SourceLocation{File: file, Line: line, Column: col}}
}

func NewLexError(msg, file string, line, col int) *Diagnostic {
	return newAt(KindLexError, msg, file, line, col)
}

func NewParseError(msg, file string, line, col int) *Diagnostic {
	return newAt(KindParseError, msg, file, line, col)
}

func NewCompileError(msg, file string, line int) *Diagnostic {
	return newAt(KindCompileError, msg, file, line, 0)
}

func NewLiftingError(msg string) *Diagnostic {
	return &Diagnostic{Kind: KindLiftingError, Message: msg}
}

func NewBorrowError(sub BorrowSubkind, msg string) *Diagnostic {
	return &Diagnostic{Kind: KindBorrowError, Subkind: string(sub), Message: msg}
}

func NewTypeInferenceError(msg string) *Diagnostic {
	return &Diagnostic{Kind: KindTypeInferenceError, Message: msg}
}

func NewRuntimeError(kind Kind, msg string) *Diagnostic {
	return &Diagnostic{Kind: kind, Message: msg}
}

func NewReferenceError(sub ReferenceSubkind, name string) *Diagnostic {
	return &Diagnostic{Kind: KindReferenceError, Subkind: string(sub), Message: fmt.Sprintf("%s is not defined", name)}
}

func NewModuleError(sub ModuleSubkind, specifier string, chain []string) *Diagnostic {
	return &Diagnostic{
		Kind: KindModuleError, Subkind: string(sub),
		Message:  fmt.Sprintf("cannot resolve module %q", specifier),
		DepChain: chain,
	}
}

func NewStackOverflow(depth int) *Diagnostic {
	return &Diagnostic{Kind: KindStackOverflow, Message: fmt.Sprintf("call stack exceeded depth %d", depth)}
}

// Wrap attaches an underlying cause (e.g. an os.Open failure from the
// module loader) to d, preserving a full stack trace via pkg/errors the
// way the teacher's database and module layers wrap I/O failures.
func (d *Diagnostic) Wrap(cause error, context string) *Diagnostic {
	d.cause = errors.Wrap(cause, context)
	return d
}

// WithStack attaches a call-stack snapshot, mirroring the teacher's
// SentraError.WithStack.
func (d *Diagnostic) WithStack(frames []StackFrame) *Diagnostic {
	d.CallStack = frames
	return d
}

// WithSource attaches the offending source line for caret rendering.
func (d *Diagnostic) WithSource(src string) *Diagnostic {
	d.Source = src
	return d
}
