package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xplshn/simplec/pkg/cli"
)

type Feature int

const (
	FeatOptAsm Feature = iota
	FeatOptIR
	FeatOptAST
	FeatDedupStrings
	FeatAsm
	FeatCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

// Module is a set of pipeline stages, used for dumps and for stopping early.
type Module uint8

const (
	ModTok Module = 1 << iota
	ModPar
	ModTyp
	ModIR
	ModCom

	ModAll = ModTok | ModPar | ModTyp | ModIR | ModCom
)

var moduleNames = []struct {
	name string
	mod  Module
}{
	{"all", ModAll},
	{"tok", ModTok},
	{"par", ModPar},
	{"typ", ModTyp},
	{"ir", ModIR},
	{"com", ModCom},
}

// ParseModule maps a module name to its set.
func ParseModule(name string) (Module, error) {
	for _, m := range moduleNames {
		if m.name == name {
			return m.mod, nil
		}
	}
	return 0, fmt.Errorf("unknown module '%s'", name)
}

// ModuleNames lists the arguments ParseModule accepts.
func ModuleNames() []string {
	names := make([]string, len(moduleNames))
	for i, m := range moduleNames {
		names[i] = m.name
	}
	return names
}

// OptLevels lists the arguments ApplyOptLevel accepts.
func OptLevels() []string {
	var levels []string
	for n := 0; n <= MaxOptLevel; n++ {
		levels = append(levels, strconv.Itoa(n))
	}
	return levels
}

func (m Module) Has(o Module) bool { return m&o != 0 }

func (m Module) String() string {
	if m == ModAll {
		return "all"
	}
	var names []string
	for _, n := range moduleNames[1:] {
		if m.Has(n.mod) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

type Config struct {
	Features   map[Feature]Info
	FeatureMap map[string]Feature
	OptLevel   int
	Dump       Module
	StopAfter  Module
	Dev        bool
	TraceOpt   bool
}

const MaxOptLevel = 4

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		FeatureMap: make(map[string]Feature),
	}

	features := map[Feature]Info{
		FeatOptAsm:       {"opt-asm", false, "Run the peephole optimizer over the generated assembly."},
		FeatOptIR:        {"opt-ir", false, "Run the peephole optimizer over the intermediate representation."},
		FeatOptAST:       {"opt-ast", false, "Rewrite comparisons in conditions into cheaper forms."},
		FeatDedupStrings: {"dedup-strings", true, "Emit each distinct string literal once in the data section."},
		FeatAsm:          {"asm", true, "Allow `__asm__` statements for inline assembly."},
	}

	cfg.Features = features
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	return cfg
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

// ApplyOptLevel enables the optimizer passes of an -O level. Each level
// includes the ones below it.
func (c *Config) ApplyOptLevel(level string) error {
	if level == "" {
		level = "0"
	}
	n, err := strconv.Atoi(level)
	if err != nil || n < 0 || n > MaxOptLevel {
		return fmt.Errorf("invalid optimize level: %s, max: %d", level, MaxOptLevel)
	}
	c.OptLevel = n

	settings := []struct {
		feature Feature
		from    int
	}{
		{FeatOptAsm, 1},
		{FeatOptIR, 2},
		{FeatOptAST, 3},
	}
	for _, s := range settings {
		c.SetFeature(s.feature, n >= s.from)
	}
	return nil
}

// RegisterPasses registers -F<name> and -Fno-<name> for every feature.
func (c *Config) RegisterPasses(fs *cli.FlagSet) {
	toggles := make([]cli.Toggle, 0, FeatCount)
	for ft := Feature(0); ft < FeatCount; ft++ {
		info := c.Features[ft]
		toggles = append(toggles, cli.Toggle{Name: info.Name, Usage: info.Description, On: info.Enabled})
	}
	fs.Toggles("F", "Passes", "pass", toggles)
}

// ApplyPasses applies -F switches in order, so the last one for a pass
// wins. They override the opt level.
func (c *Config) ApplyPasses(switches []cli.Switch) error {
	for _, sw := range switches {
		ft, ok := c.FeatureMap[sw.Name]
		if !ok {
			return fmt.Errorf("unknown pass '%s'", sw.Name)
		}
		c.SetFeature(ft, sw.On)
	}
	return nil
}

// ApplyDebug handles one -d argument: a module name or "opt".
func (c *Config) ApplyDebug(arg string) error {
	if arg == "opt" {
		c.TraceOpt = true
		return nil
	}
	m, err := ParseModule(arg)
	if err != nil {
		return err
	}
	c.Dump |= m
	return nil
}

// ApplyStopAfter handles -D. Stopping after a module also dumps it.
func (c *Config) ApplyStopAfter(arg string) error {
	m, err := ParseModule(arg)
	if err != nil {
		return err
	}
	c.Dump |= m
	c.StopAfter |= m
	return nil
}
