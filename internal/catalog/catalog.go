// Package catalog holds the tool catalog data model: callable tool schemas,
// their argument classification, and the per-category reliability tables used
// by routing. A catalog is immutable for the lifetime of a request.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Property describes a single tool argument.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Parameters is the JSON-Schema-shaped parameter block of a tool.
type Parameters struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Tool is one callable tool schema.
type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// RequiredArgs returns the tool's required argument names.
func (t Tool) RequiredArgs() []string {
	return t.Parameters.Required
}

// IsRequired reports whether arg is a required argument of the tool.
func (t Tool) IsRequired(arg string) bool {
	for _, r := range t.Parameters.Required {
		if r == arg {
			return true
		}
	}
	return false
}

// Catalog is the set of tool schemas visible to a request.
type Catalog struct {
	tools []Tool
	index map[string]int
}

// New builds a catalog from tool schemas. Later duplicates of a name are
// ignored; name is the unique key.
func New(tools ...Tool) *Catalog {
	c := &Catalog{index: make(map[string]int, len(tools))}
	for _, t := range tools {
		if _, dup := c.index[t.Name]; dup {
			continue
		}
		c.index[t.Name] = len(c.tools)
		c.tools = append(c.tools, t)
	}
	return c
}

// Parse decodes a JSON array of tool schemas in the external wire format.
func Parse(raw []byte) (*Catalog, error) {
	var tools []Tool
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, fmt.Errorf("parse tool catalog: %w", err)
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("tool catalog is empty")
	}
	return New(tools...), nil
}

// LoadFile reads a catalog JSON file from disk.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tool catalog: %w", err)
	}
	return Parse(raw)
}

// Get returns the schema for name.
func (c *Catalog) Get(name string) (Tool, bool) {
	i, ok := c.index[name]
	if !ok {
		return Tool{}, false
	}
	return c.tools[i], true
}

// Has reports whether name exists in the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Tools returns the schemas in declaration order.
func (c *Catalog) Tools() []Tool {
	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Names returns the tool names in declaration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.tools))
	for i, t := range c.tools {
		out[i] = t.Name
	}
	return out
}

// Len returns the number of tools.
func (c *Catalog) Len() int {
	return len(c.tools)
}

// Subset returns a new catalog containing only the named tools, preserving
// declaration order. Unknown names are skipped.
func (c *Catalog) Subset(names ...string) *Catalog {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var kept []Tool
	for _, t := range c.tools {
		if want[t.Name] {
			kept = append(kept, t)
		}
	}
	return New(kept...)
}

// ── Tool categories ──────────────────────────────────────────────────────────

// Category is the behavioral family of a tool, inferred from its name and
// description. The local tier's reliability differs sharply by category.
type Category string

const (
	CategoryWeather  Category = "weather"
	CategoryMusic    Category = "music"
	CategoryAlarm    Category = "alarm"
	CategoryTimer    Category = "timer"
	CategoryReminder Category = "reminder"
	CategoryMessage  Category = "message"
	CategoryContacts Category = "contacts"
	CategorySearch   Category = "search"
	CategoryUnknown  Category = "unknown"
)

// categoryPatterns is scanned in order; first substring hit wins.
var categoryPatterns = []struct {
	pattern  string
	category Category
}{
	{"weather", CategoryWeather},
	{"forecast", CategoryWeather},
	{"location", CategoryWeather},
	{"play", CategoryMusic},
	{"music", CategoryMusic},
	{"alarm", CategoryAlarm},
	{"timer", CategoryTimer},
	{"remind", CategoryReminder},
	{"message", CategoryMessage},
	{"contact", CategoryContacts},
	{"search", CategorySearch},
	{"note", CategorySearch},
}

// CategoryOf infers the category of a tool from its name and description.
func CategoryOf(t Tool) Category {
	combined := strings.ToLower(t.Name + " " + t.Description)
	for _, cp := range categoryPatterns {
		if strings.Contains(combined, cp.pattern) {
			return cp.category
		}
	}
	return CategoryUnknown
}

// ReliabilityPenalty is the empirical penalty for a tool category: how often
// the local tier mangles calls for tools of that family. Weather-style tools
// come out clean; time-bearing and messaging tools do not.
func ReliabilityPenalty(cat Category) float64 {
	switch cat {
	case CategoryWeather:
		return 0.1
	case CategoryMusic:
		return 0.7
	case CategoryAlarm, CategoryTimer, CategoryMessage, CategoryContacts:
		return 0.8
	case CategoryReminder:
		return 0.85
	case CategorySearch:
		return 0.7
	default:
		return 0.5
	}
}

// ── Argument classes ─────────────────────────────────────────────────────────

// ArgClass buckets an argument by what kind of value it carries, keyed off
// the argument name.
type ArgClass string

const (
	ArgTemporal ArgClass = "temporal"
	ArgLocation ArgClass = "location"
	ArgPerson   ArgClass = "person"
	ArgQuery    ArgClass = "query"
	ArgOther    ArgClass = "other"
)

// ClassifyArg buckets an argument name into its class.
func ClassifyArg(name string) ArgClass {
	key := strings.ToLower(name)
	switch {
	case containsAny(key, "time", "duration", "hour", "minute", "when"):
		return ArgTemporal
	case containsAny(key, "location", "city", "place"):
		return ArgLocation
	case containsAny(key, "contact", "person", "name", "recipient"):
		return ArgPerson
	case containsAny(key, "query", "search", "term", "keyword"):
		return ArgQuery
	default:
		return ArgOther
	}
}

// ArgDifficulty is the fixed difficulty weight of an argument class: how hard
// the local tier finds producing a correct value for it.
func ArgDifficulty(class ArgClass) float64 {
	switch class {
	case ArgTemporal:
		return 0.8
	case ArgLocation:
		return 0.2
	case ArgPerson:
		return 0.7
	case ArgQuery:
		return 0.6
	default:
		return 0.4
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
