// Package languages maps a project's primary language to the regular
// expression used to find function declarations in its source files.
package languages

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// builtinPatterns holds the default declaration pattern per language.
// Capture group 1 is the declared name. These are line-anchored,
// best-effort patterns; a language without an entry simply produces no
// function-level reminders.
var builtinPatterns = map[string]string{
	"python":     `(?m)^[ \t]*(?:async[ \t]+)?def[ \t]+([A-Za-z_]\w*)[ \t]*\(`,
	"go":         `(?m)^func[ \t]+(?:\([^)]*\)[ \t]*)?([A-Za-z_]\w*)[ \t]*\(`,
	"javascript": `(?m)^[ \t]*(?:export[ \t]+)?(?:async[ \t]+)?function[ \t]*\*?[ \t]*([A-Za-z_$][\w$]*)[ \t]*\(`,
	"typescript": `(?m)^[ \t]*(?:export[ \t]+)?(?:async[ \t]+)?function[ \t]*\*?[ \t]*([A-Za-z_$][\w$]*)[ \t]*\(`,
	"rust":       `(?m)^[ \t]*(?:pub(?:\([^)]*\))?[ \t]+)?(?:async[ \t]+)?(?:unsafe[ \t]+)?fn[ \t]+([A-Za-z_]\w*)`,
	"java":       `(?m)^[ \t]*(?:(?:public|protected|private|static|final|abstract|synchronized|native)[ \t]+)+[\w<>\[\].]+[ \t]+(\w+)[ \t]*\(`,
}

// aliases normalizes the spellings the infrastructure table has been
// seen to use.
var aliases = map[string]string{
	"py":      "python",
	"python3": "python",
	"golang":  "go",
	"js":      "javascript",
	"node":    "javascript",
	"ts":      "typescript",
	"rs":      "rust",
}

// Override is one entry in the optional languages.yml file. It replaces
// the builtin pattern for its language, or adds a new language.
type Override struct {
	Language string `yaml:"language"`
	Pattern  string `yaml:"pattern"`
}

// File is the top-level YAML structure of languages.yml.
type File struct {
	Languages []Override `yaml:"languages"`
}

// Registry holds compiled declaration patterns, keyed by normalized
// language name.
type Registry struct {
	byName map[string]*regexp.Regexp
	order  []string // preserves definition order, builtins first
}

// Builtin returns a registry containing only the builtin patterns.
func Builtin() *Registry {
	r := &Registry{byName: make(map[string]*regexp.Regexp, len(builtinPatterns))}
	for _, name := range builtinNames() {
		r.byName[name] = regexp.MustCompile(builtinPatterns[name])
		r.order = append(r.order, name)
	}
	return r
}

// Load reads the YAML file at path and returns the builtin registry
// with its overrides applied. If the file does not exist, Load returns
// the builtin registry (not an error).
func Load(path string) (*Registry, error) {
	r := Builtin()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	for _, o := range f.Languages {
		name := normalize(o.Language)
		if name == "" {
			return nil, fmt.Errorf("language entry with empty name")
		}
		re, err := regexp.Compile(o.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern for %q: %w", o.Language, err)
		}
		if _, exists := r.byName[name]; !exists {
			r.order = append(r.order, name)
		}
		r.byName[name] = re
	}
	return r, nil
}

// Get returns the declaration pattern for a language. Lookup is
// case-insensitive and alias-aware. Returns (nil, false) if the
// language is unknown.
func (r *Registry) Get(language string) (*regexp.Regexp, bool) {
	re, ok := r.byName[normalize(language)]
	return re, ok
}

// Names returns a sorted list of registered language names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

// normalize lowercases a language name and resolves known aliases.
func normalize(language string) string {
	name := strings.ToLower(strings.TrimSpace(language))
	if canonical, ok := aliases[name]; ok {
		return canonical
	}
	return name
}

// builtinNames returns the builtin language names in stable order.
func builtinNames() []string {
	names := make([]string, 0, len(builtinPatterns))
	for name := range builtinPatterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
