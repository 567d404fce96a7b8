// Package cli parses compiler command lines in the gcc manner: short flags
// with attached values (-O2, -dtok), flags whose value may be left out
// (-D, -O), enumerated values, and toggle families such as -F<pass> and
// -Fno-<pass>. Help pages are wrapped to the terminal width.
package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

type Value interface {
	String() string
	Set(string) error
}

type stringValue struct{ p *string }

func (v stringValue) Set(s string) error { *v.p = s; return nil }
func (v stringValue) String() string     { return *v.p }

type boolValue struct{ p *bool }

func (v boolValue) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s'", s)
	}
	*v.p = b
	return nil
}
func (v boolValue) String() string { return strconv.FormatBool(*v.p) }

type listValue struct{ p *[]string }

func (v listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v listValue) String() string     { return strings.Join(*v.p, ",") }

type Flag struct {
	Name  string
	Short string
	Usage string
	Meta  string // name of the value in help pages
	Value Value
	// Choices, when set, are the only values the flag accepts.
	Choices []string
	// A flag with optional set may be given bare and then takes NoOpt.
	optional bool
	NoOpt    string
	def      string
}

// OneOf restricts the values of f and lists them in the help page.
func (f *Flag) OneOf(choices ...string) *Flag {
	f.Choices = choices
	return f
}

func (f *Flag) spelled() string {
	if f.Short != "" {
		return "-" + f.Short
	}
	return "--" + f.Name
}

func (f *Flag) isBool() bool {
	_, ok := f.Value.(boolValue)
	return ok
}

func (f *Flag) set(s string) error {
	if len(f.Choices) > 0 && !slices.Contains(f.Choices, s) {
		return fmt.Errorf("invalid value '%s' for %s, expected one of: %s", s, f.spelled(), strings.Join(f.Choices, ", "))
	}
	return f.Value.Set(s)
}

// takes reports whether a bare optional flag consumes s as its value.
func (f *Flag) takes(s string) bool {
	return len(f.Choices) > 0 && slices.Contains(f.Choices, s)
}

// Toggle is one member of a toggle family, switched on by -<prefix><name>
// and off by -<prefix>no-<name>.
type Toggle struct {
	Name  string
	Usage string
	On    bool // state before any flag
}

// Switch records one toggle flag as it appeared on the command line.
type Switch struct {
	Name string
	On   bool
}

type family struct {
	prefix  string
	title   string
	noun    string
	members []Toggle
	seen    []Switch
}

func (fam *family) has(name string) bool {
	return slices.ContainsFunc(fam.members, func(t Toggle) bool { return t.Name == name })
}

type FlagSet struct {
	name     string
	flags    []*Flag
	byName   map[string]*Flag
	byShort  map[string]*Flag
	families []*family
	args     []string
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:    name,
		byName:  make(map[string]*Flag),
		byShort: make(map[string]*Flag),
	}
}

func (fs *FlagSet) Args() []string { return fs.args }

func (fs *FlagSet) Lookup(name string) *Flag { return fs.byName[name] }

func (fs *FlagSet) add(flag *Flag) *Flag {
	if flag.Name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := fs.byName[flag.Name]; ok {
		panic("flag redefined: " + flag.Name)
	}
	if flag.Short != "" {
		if _, ok := fs.byShort[flag.Short]; ok {
			panic("shorthand flag redefined: " + flag.Short)
		}
		fs.byShort[flag.Short] = flag
	}
	fs.byName[flag.Name] = flag
	fs.flags = append(fs.flags, flag)
	return flag
}

func (fs *FlagSet) String(p *string, name, short, value, usage, meta string) *Flag {
	*p = value
	return fs.add(&Flag{Name: name, Short: short, Usage: usage, Meta: meta, Value: stringValue{p}, def: value})
}

func (fs *FlagSet) Bool(p *bool, name, short, usage string) *Flag {
	*p = false
	return fs.add(&Flag{Name: name, Short: short, Usage: usage, Value: boolValue{p}})
}

// List collects every occurrence of the flag in order.
func (fs *FlagSet) List(p *[]string, name, short, usage, meta string) *Flag {
	*p = nil
	return fs.add(&Flag{Name: name, Short: short, Usage: usage, Meta: meta, Value: listValue{p}})
}

// Optional defines a flag that may be given bare. -O2 and --optimize=2 set
// the value; "-O 2" takes the next argument only when it is one of the
// flag's choices; a bare -O sets noOpt.
func (fs *FlagSet) Optional(p *string, name, short, value, noOpt, usage, meta string) *Flag {
	*p = value
	return fs.add(&Flag{Name: name, Short: short, Usage: usage, Meta: meta, Value: stringValue{p}, optional: true, NoOpt: noOpt, def: value})
}

// Toggles registers a family of -<prefix><name> and -<prefix>no-<name>
// flags. noun names one member in help pages and errors.
func (fs *FlagSet) Toggles(prefix, title, noun string, members []Toggle) {
	fs.families = append(fs.families, &family{prefix: prefix, title: title, noun: noun, members: members})
}

// Switched returns the toggle flags of the family with prefix in command
// line order.
func (fs *FlagSet) Switched(prefix string) []Switch {
	for _, fam := range fs.families {
		if fam.prefix == prefix {
			return fam.seen
		}
	}
	return nil
}

func (fs *FlagSet) Parse(arguments []string) error {
	fs.args = nil
	for _, fam := range fs.families {
		fam.seen = nil
	}
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		var err error
		switch {
		case arg == "--":
			fs.args = append(fs.args, arguments[i+1:]...)
			return nil
		case strings.HasPrefix(arg, "--"):
			err = fs.parseLong(arg[2:], arguments, &i)
		case len(arg) > 1 && arg[0] == '-':
			err = fs.parseShort(arg[1:], arguments, &i)
		default:
			fs.args = append(fs.args, arg)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (fs *FlagSet) parseLong(body string, arguments []string, i *int) error {
	name, value, attached := strings.Cut(body, "=")
	if name == "" {
		return fmt.Errorf("empty flag name")
	}
	flag, ok := fs.byName[name]
	if !ok {
		return fmt.Errorf("unknown flag: --%s", name)
	}
	if attached {
		return flag.set(value)
	}
	return fs.detached(flag, "--"+name, arguments, i)
}

func (fs *FlagSet) parseShort(body string, arguments []string, i *int) error {
	for _, fam := range fs.families {
		rest, ok := strings.CutPrefix(body, fam.prefix)
		if !ok || rest == "" {
			continue
		}
		name, off := strings.CutPrefix(rest, "no-")
		if !fam.has(name) {
			return fmt.Errorf("unknown %s: -%s", fam.noun, body)
		}
		fam.seen = append(fam.seen, Switch{Name: name, On: !off})
		return nil
	}

	short, value := body[:1], body[1:]
	flag, ok := fs.byShort[short]
	if !ok {
		return fmt.Errorf("unknown shorthand flag: -%s", short)
	}
	if flag.isBool() {
		if value != "" {
			return fmt.Errorf("flag -%s takes no value", short)
		}
		return flag.set("true")
	}
	if value != "" {
		return flag.set(strings.TrimPrefix(value, "="))
	}
	return fs.detached(flag, "-"+short, arguments, i)
}

// detached sets a flag whose value, if any, is the next argument.
func (fs *FlagSet) detached(flag *Flag, spelled string, arguments []string, i *int) error {
	next := ""
	if *i+1 < len(arguments) {
		next = arguments[*i+1]
	}
	switch {
	case flag.isBool():
		return flag.set("true")
	case flag.optional && !flag.takes(next):
		return flag.set(flag.NoOpt)
	case *i+1 >= len(arguments):
		return fmt.Errorf("flag needs an argument: %s", spelled)
	}
	*i++
	return flag.set(next)
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error
	Stdout      io.Writer
	Stderr      io.Writer
}

func NewApp(name string) *App {
	return &App{
		Name:    name,
		FlagSet: NewFlagSet(name),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func (a *App) Run(arguments []string) error {
	var help bool
	a.FlagSet.Bool(&help, "help", "h", "Display this information.")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(a.Stderr, err)
		fmt.Fprintf(a.Stderr, "Usage: %s <options> [input.c] ...\nRun '%s --help' for all available options.\n", a.Name, a.Name)
		return err
	}
	if help {
		a.writeHelp(a.Stdout, terminalWidth())
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

// flagLabel is the left column of a flag in the help page.
func flagLabel(f *Flag) string {
	var sb strings.Builder
	switch {
	case f.optional:
		if f.Short != "" {
			fmt.Fprintf(&sb, "-%s[%s], ", f.Short, f.Meta)
		}
		fmt.Fprintf(&sb, "--%s[=%s]", f.Name, f.Meta)
	case f.isBool():
		if f.Short != "" {
			fmt.Fprintf(&sb, "-%s, ", f.Short)
		}
		fmt.Fprintf(&sb, "--%s", f.Name)
	default:
		if f.Short != "" {
			fmt.Fprintf(&sb, "-%s <%s>, ", f.Short, f.Meta)
		}
		fmt.Fprintf(&sb, "--%s <%s>", f.Name, f.Meta)
	}
	return sb.String()
}

func flagUsage(f *Flag) string {
	usage := f.Usage
	if len(f.Choices) > 0 {
		usage += " One of: " + strings.Join(f.Choices, ", ") + "."
	}
	if f.def != "" {
		usage += " Default: " + f.def + "."
	}
	return usage
}

// helpPage lays out two columns: labels padded to the widest one, and
// usage text wrapped to what is left of the terminal.
type helpPage struct {
	sb    strings.Builder
	col   int
	width int
}

const helpIndent = "    "

func (h *helpPage) heading(title string) { fmt.Fprintf(&h.sb, "\n  %s\n", title) }

func (h *helpPage) entry(label, usage string) {
	lines := wrapText(usage, h.width-len(helpIndent)-h.col-2)
	if len(lines) == 0 {
		lines = []string{""}
	}
	fmt.Fprintf(&h.sb, "%s%-*s  %s\n", helpIndent, h.col, label, lines[0])
	pad := strings.Repeat(" ", len(helpIndent)+h.col+2)
	for _, l := range lines[1:] {
		fmt.Fprintf(&h.sb, "%s%s\n", pad, l)
	}
}

func (a *App) writeHelp(w io.Writer, width int) {
	flags := slices.Clone(a.FlagSet.flags)
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })

	h := &helpPage{width: width}
	for _, f := range flags {
		h.col = max(h.col, len(flagLabel(f)))
	}
	for _, fam := range a.FlagSet.families {
		h.col = max(h.col, len(fam.prefix)+len("no-<>")+len(fam.noun)+1)
		for _, t := range fam.members {
			h.col = max(h.col, len(t.Name))
		}
	}

	fmt.Fprintf(&h.sb, "%s %s\n", a.Name, a.Synopsis)
	if a.Description != "" {
		h.sb.WriteString("\n")
		for _, l := range wrapText(a.Description, width-2) {
			fmt.Fprintf(&h.sb, "  %s\n", l)
		}
	}

	h.heading("Options")
	for _, f := range flags {
		h.entry(flagLabel(f), flagUsage(f))
	}

	for _, fam := range a.FlagSet.families {
		h.heading(fam.title)
		h.entry(fmt.Sprintf("-%s<%s>", fam.prefix, fam.noun), "Enable a "+fam.noun+".")
		h.entry(fmt.Sprintf("-%sno-<%s>", fam.prefix, fam.noun), "Disable a "+fam.noun+".")
		members := slices.Clone(fam.members)
		sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })
		for _, t := range members {
			mark := "[-] "
			if t.On {
				mark = "[x] "
			}
			h.entry(t.Name, mark+t.Usage)
		}
	}

	if len(a.Authors) > 0 || a.Repository != "" {
		h.sb.WriteString("\n")
		if len(a.Authors) > 0 {
			fmt.Fprintf(&h.sb, "  Written by %s.\n", strings.Join(a.Authors, ", "))
		}
		if a.Repository != "" {
			fmt.Fprintf(&h.sb, "  Source: %s\n", a.Repository)
		}
	}
	io.WriteString(w, h.sb.String())
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 40)
}

// wrapText breaks text into lines of at most width bytes. A word longer
// than width gets a line of its own.
func wrapText(text string, width int) []string {
	var lines []string
	line := ""
	for _, word := range strings.Fields(text) {
		switch {
		case line == "":
			line = word
		case len(line)+1+len(word) > width:
			lines = append(lines, line)
			line = word
		default:
			line += " " + word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}
