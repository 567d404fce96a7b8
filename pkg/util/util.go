package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/xplshn/simplec/pkg/token"
	"golang.org/x/term"
)

const (
	colourRed   = "\033[31m"
	colourGreen = "\033[32m"
	colourReset = "\033[0m"
)

// Diagnostic is a user facing compile error. Every stage returns one
// instead of exiting, so the driver decides how and where it is printed.
type Diagnostic struct {
	Loc token.Location
	Msg string
	// Committed marks errors raised after the parser has committed to a
	// production. Speculative parsing never rewinds past one.
	Committed bool
	// Site is the compiler source position that raised the error.
	Site string
}

func (d *Diagnostic) Error() string {
	if d.Loc.IsZero() {
		return "ERROR: " + d.Msg
	}
	return fmt.Sprintf("ERROR:%s:%d:%d: %s", d.Loc.File, d.Loc.Row, d.Loc.Col, d.Msg)
}

// Errorf builds a diagnostic anchored at loc.
func Errorf(loc token.Location, format string, args ...any) *Diagnostic {
	return &Diagnostic{Loc: loc, Msg: fmt.Sprintf(format, args...), Site: site(2)}
}

// Commit marks err as committed. Non diagnostic errors pass through.
func Commit(err error) error {
	var d *Diagnostic
	if errors.As(err, &d) {
		d.Committed = true
	}
	return err
}

func IsCommitted(err error) bool {
	var d *Diagnostic
	return errors.As(err, &d) && d.Committed
}

func site(skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	name := "?"
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = fn.Name()
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
	}
	return fmt.Sprintf("%s:%d in %s", filepath.Base(file), line, name)
}

// Excerpt renders the source row of loc with a caret underline.
func Excerpt(loc token.Location, colour bool) string {
	if loc.IsZero() {
		return ""
	}
	width, pad := 3, "   "
	if loc.Row >= 1000 {
		width, pad = 5, "     "
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%*d | %s\n", width, loc.Row, loc.Line)
	col := loc.Col - 1
	if col < 0 {
		col = 0
	}
	tail := loc.Len - 1
	if tail < 0 {
		tail = 0
	}
	sb.WriteString(pad + "   " + strings.Repeat(" ", col))
	if colour {
		sb.WriteString(colourGreen)
	}
	sb.WriteString("^" + strings.Repeat("~", tail))
	if colour {
		sb.WriteString(colourReset)
	}
	sb.WriteString("\n")
	return sb.String()
}

// Render prints err to w. Diagnostics get their excerpt, and with dev set
// the compiler site that raised them.
func Render(w io.Writer, err error, dev, colour bool) {
	var d *Diagnostic
	if !errors.As(err, &d) {
		label := "ERROR:"
		if colour {
			label = colourRed + label + colourReset
		}
		fmt.Fprintf(w, "%s %v\n", label, err)
		return
	}
	if dev && d.Site != "" {
		fmt.Fprintf(w, "ERROR throw at %s\n", d.Site)
	}
	msg := d.Error()
	if colour {
		msg = colourRed + "ERROR" + colourReset + strings.TrimPrefix(msg, "ERROR")
	}
	fmt.Fprintln(w, msg)
	fmt.Fprint(w, Excerpt(d.Loc, colour))
}

// UseColour reports whether f is a terminal.
func UseColour(f *os.File) bool { return term.IsTerminal(int(f.Fd())) }

// Defect is an internal invariant violation. It is raised with panic and
// never reported as a user error.
type Defect struct {
	Msg  string
	Site string
}

func (d Defect) Error() string { return "internal compiler error: " + d.Msg + " (" + d.Site + ")" }

// Assert panics with a Defect when cond does not hold.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(Defect{Msg: fmt.Sprintf(format, args...), Site: site(2)})
	}
}

// Unreachable panics with a Defect.
func Unreachable(format string, args ...any) {
	panic(Defect{Msg: fmt.Sprintf(format, args...), Site: site(2)})
}
