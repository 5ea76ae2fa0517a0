// Package cli is a small flag and help-page framework. It supports GNU-style
// long and short flags plus prefix flags such as -Wname and -Fno-name that
// collect toggles for a flag group.
package cli

import (
	"fmt"
	"os"
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

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value %q: %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }

type Flag struct {
	Name      string
	Shorthand string
	Usage     string
	Value     Value
	DefValue  string
	ArgName   string
}

// FlagGroup documents a set of toggles reachable through a prefix flag, such
// as warnings through -W<name> and -Wno-<name>.
type FlagGroup struct {
	Name    string
	Prefix  string
	Entries []GroupEntry
}

type GroupEntry struct {
	Name    string
	Usage   string
	Enabled bool
}

type FlagSet struct {
	name          string
	flags         map[string]*Flag
	shorthands    map[string]*Flag
	specialPrefix map[string]*Flag
	groups        []FlagGroup
	args          []string
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:          name,
		flags:         make(map[string]*Flag),
		shorthands:    make(map[string]*Flag),
		specialPrefix: make(map[string]*Flag),
	}
}

// Args returns the non-flag arguments left after Parse.
func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, argName string) {
	*p = value
	f.addVar(&stringValue{p}, name, shorthand, usage, value, argName)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.addVar(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

// Special registers a prefix flag: every argument of the form -<prefix><rest>
// appends rest to p.
func (f *FlagSet) Special(p *[]string, prefix, usage, argName string) {
	*p = nil
	f.addVar(&listValue{p}, prefix, "", usage, "", argName)
	f.specialPrefix[prefix] = f.flags[prefix]
}

// AddGroup documents the toggles a Special prefix flag controls; the entries
// appear on the help page.
func (f *FlagSet) AddGroup(name, prefix string, entries []GroupEntry) {
	f.groups = append(f.groups, FlagGroup{Name: name, Prefix: prefix, Entries: entries})
}

func (f *FlagSet) addVar(value Value, name, shorthand, usage, defValue, argName string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic("flag redefined: " + name)
	}
	flag := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ArgName: argName}
	f.flags[name] = flag
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic("shorthand flag redefined: " + shorthand)
		}
		f.shorthands[shorthand] = flag
	}
}

func (f *FlagSet) Parse(arguments []string) error {
	f.args = nil
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		if len(arg) < 2 || arg[0] != '-' {
			f.args = append(f.args, arg)
			continue
		}
		if arg == "--" {
			f.args = append(f.args, arguments[i+1:]...)
			break
		}
		var err error
		if strings.HasPrefix(arg, "--") {
			err = f.parseLong(arg[2:], arguments, &i)
		} else {
			err = f.parseShort(arg, arguments, &i)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *FlagSet) parseLong(arg string, arguments []string, i *int) error {
	name, value, hasValue := strings.Cut(arg, "=")
	flag, ok := f.flags[name]
	if !ok {
		return fmt.Errorf("unknown flag: --%s", name)
	}
	if hasValue {
		return flag.Value.Set(value)
	}
	if _, isBool := flag.Value.(*boolValue); isBool {
		return flag.Value.Set("")
	}
	if *i+1 >= len(arguments) {
		return fmt.Errorf("flag needs an argument: --%s", name)
	}
	*i++
	return flag.Value.Set(arguments[*i])
}

func (f *FlagSet) parseShort(arg string, arguments []string, i *int) error {
	for prefix, flag := range f.specialPrefix {
		if strings.HasPrefix(arg, "-"+prefix) && len(arg) > len(prefix)+1 {
			return flag.Value.Set(arg[len(prefix)+1:])
		}
	}

	shorthand := arg[1:2]
	flag, ok := f.shorthands[shorthand]
	if !ok {
		return fmt.Errorf("unknown flag: -%s", shorthand)
	}
	if _, isBool := flag.Value.(*boolValue); isBool {
		return flag.Value.Set("")
	}
	if rest := arg[2:]; rest != "" {
		return flag.Value.Set(rest)
	}
	if *i+1 >= len(arguments) {
		return fmt.Errorf("flag needs an argument: -%s", shorthand)
	}
	*i++
	return flag.Value.Set(arguments[*i])
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet(name)}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintf(os.Stderr, "Run '%s --help' for available options.\n", a.Name)
		return err
	}
	if help {
		a.writeHelp(os.Stdout)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

func (a *App) writeHelp(w *os.File) {
	var sb strings.Builder
	width := terminalWidth()

	fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	if a.Description != "" {
		sb.WriteString("\n")
		for _, line := range wrapText(a.Description, width-4) {
			fmt.Fprintf(&sb, "    %s\n", line)
		}
	}

	flags := a.optionFlags()
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })
	left := make([]string, len(flags))
	leftWidth := 0
	for i, flag := range flags {
		left[i] = formatFlag(flag)
		if len(left[i]) > leftWidth {
			leftWidth = len(left[i])
		}
	}

	sb.WriteString("\nOptions\n")
	for i, flag := range flags {
		writeEntry(&sb, left[i], flag.Usage, leftWidth, width)
	}

	for _, group := range a.FlagSet.groups {
		fmt.Fprintf(&sb, "\n%s (-%s<name>, -%sno-<name>)\n", group.Name, group.Prefix, group.Prefix)
		entryWidth := 0
		for _, entry := range group.Entries {
			if len(entry.Name) > entryWidth {
				entryWidth = len(entry.Name)
			}
		}
		entries := make([]GroupEntry, len(group.Entries))
		copy(entries, group.Entries)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, entry := range entries {
			mark := "-"
			if entry.Enabled {
				mark = "x"
			}
			writeEntry(&sb, fmt.Sprintf("%-*s |%s|", entryWidth, entry.Name, mark), entry.Usage, entryWidth+4, width)
		}
	}

	if a.Repository != "" {
		fmt.Fprintf(&sb, "\nFor more details refer to %s\n", a.Repository)
	}
	fmt.Fprint(w, sb.String())
}

func (a *App) optionFlags() []*Flag {
	var flags []*Flag
	for name, flag := range a.FlagSet.flags {
		if _, special := a.FlagSet.specialPrefix[name]; special {
			continue
		}
		flags = append(flags, flag)
	}
	return flags
}

func formatFlag(flag *Flag) string {
	var sb strings.Builder
	if flag.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s, ", flag.Shorthand)
	} else {
		sb.WriteString("    ")
	}
	fmt.Fprintf(&sb, "--%s", flag.Name)
	if flag.ArgName != "" {
		fmt.Fprintf(&sb, " <%s>", flag.ArgName)
	}
	return sb.String()
}

func writeEntry(sb *strings.Builder, left, usage string, leftWidth, termWidth int) {
	avail := termWidth - leftWidth - 8
	if avail < 10 {
		avail = 10
	}
	lines := wrapText(usage, avail)
	if len(lines) == 0 {
		lines = []string{""}
	}
	fmt.Fprintf(sb, "    %-*s  %s\n", leftWidth, left, lines[0])
	for _, line := range lines[1:] {
		fmt.Fprintf(sb, "    %-*s  %s\n", leftWidth, "", line)
	}
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width < 20 {
		return 80
	}
	return width
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	var line strings.Builder
	for _, word := range words {
		if line.Len() > 0 && line.Len()+1+len(word) > maxWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
