package signals

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

//go:embed defaults.yaml
var defaultTables []byte

// WeightEnvPrefix prefixes environment overrides of numeric weights,
// e.g. LEADSCORE_WEIGHT_BASE_SCORE=45.
const WeightEnvPrefix = "LEADSCORE_WEIGHT_"

// Pattern is one phrase (or regular expression) of a category.
type Pattern struct {
	Phrase string  `koanf:"phrase"`
	Regex  bool    `koanf:"regex"`
	Weight float64 `koanf:"weight"`
}

// CategorySpec is the raw, uncompiled form of a category.
type CategorySpec struct {
	Label    string    `koanf:"label"`
	MinHits  int       `koanf:"min_hits"`
	Patterns []Pattern `koanf:"patterns"`
}

// Weights are the scorer's tunable constants, in points.
type Weights struct {
	BaseScore          float64 `koanf:"base_score" json:"base_score"`
	StrengthScale      float64 `koanf:"strength_scale" json:"strength_scale"`
	StrengthFactor     float64 `koanf:"strength_factor" json:"strength_factor"`
	UrgencyTextPoints  float64 `koanf:"urgency_text_points" json:"urgency_text_points"`
	UrgencyLevelPoints float64 `koanf:"urgency_level_points" json:"urgency_level_points"`
	UrgencyFactor      float64 `koanf:"urgency_factor" json:"urgency_factor"`
	MinPoints          float64 `koanf:"min_points" json:"min_points"`
	MaxPoints          float64 `koanf:"max_points" json:"max_points"`
}

// Document mirrors the YAML layout of the tables file.
type Document struct {
	Version             string                  `koanf:"version"`
	Weights             Weights                 `koanf:"weights"`
	ScaleMultipliers    map[string]float64      `koanf:"scale_multipliers"`
	IndustryMultipliers map[string]float64      `koanf:"industry_multipliers"`
	Strength            map[string]CategorySpec `koanf:"strength"`
	Industries          map[string]CategorySpec `koanf:"industries"`
	UseCases            map[string]CategorySpec `koanf:"use_cases"`
	Enterprise          map[string]CategorySpec `koanf:"enterprise"`
	Scale               map[string]CategorySpec `koanf:"scale"`
	Urgency             map[string]CategorySpec `koanf:"urgency"`
	Competitors         map[string]CategorySpec `koanf:"competitors"`
	Geography           map[string]CategorySpec `koanf:"geography"`
}

// Category is a compiled keyword category. It is immutable once built.
type Category struct {
	Name    string
	Label   string
	MinHits int

	patterns []compiledPattern
}

type compiledPattern struct {
	re     *regexp.Regexp
	weight float64
}

// Table is an ordered set of categories.
type Table struct {
	Name       string
	Categories []Category
}

// Multiplier is a word-bounded industry key with its score multiplier.
type Multiplier struct {
	Key   string
	Value float64

	re *regexp.Regexp
}

// Matches reports whether the key occurs in s as a whole word or phrase.
func (m Multiplier) Matches(s string) bool {
	return m.re.MatchString(s)
}

// Catalog is the compiled form of all tables. Share it freely; nothing mutates it.
type Catalog struct {
	Version string
	Weights Weights

	ScaleMultipliers    map[string]float64
	IndustryMultipliers []Multiplier

	Strength    Table
	Industries  Table
	UseCases    Table
	Enterprise  Table
	Scale       Table
	Urgency     Table
	Competitors Table
	Geography   Table
}

// embeddedProvider feeds the compiled-in defaults to koanf.
type embeddedProvider []byte

func (p embeddedProvider) ReadBytes() ([]byte, error) {
	return p, nil
}

func (p embeddedProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("embedded provider does not support Read")
}

// LoadDocument layers the embedded defaults, the optional override file and
// weight overrides from the environment, in that order.
func LoadDocument(path string) (*Document, error) {
	k := koanf.New(".")

	if err := k.Load(embeddedProvider(defaultTables), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("LoadDocument: defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("LoadDocument: %s: %w", path, err)
		}
	}

	envProvider := env.Provider(WeightEnvPrefix, ".", func(s string) string {
		return "weights." + strings.ToLower(strings.TrimPrefix(s, WeightEnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("LoadDocument: env: %w", err)
	}

	var doc Document
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("LoadDocument: unmarshal: %w", err)
	}
	return &doc, nil
}

// Load reads and compiles the tables. An empty path uses the embedded defaults.
func Load(path string) (*Catalog, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return Compile(doc)
}

// Compile validates a document and compiles every pattern.
func Compile(doc *Document) (*Catalog, error) {
	if doc.Weights.MaxPoints <= doc.Weights.MinPoints {
		return nil, fmt.Errorf("weights: max_points (%v) must exceed min_points (%v)",
			doc.Weights.MaxPoints, doc.Weights.MinPoints)
	}
	for _, bucket := range ScaleBuckets {
		if _, ok := doc.ScaleMultipliers[bucket]; !ok {
			return nil, fmt.Errorf("scale_multipliers: missing %q", bucket)
		}
		if _, ok := doc.Scale[bucket]; !ok {
			return nil, fmt.Errorf("scale: missing %q category", bucket)
		}
	}

	cat := &Catalog{
		Version:          doc.Version,
		Weights:          doc.Weights,
		ScaleMultipliers: make(map[string]float64, len(doc.ScaleMultipliers)),
	}
	for k, v := range doc.ScaleMultipliers {
		cat.ScaleMultipliers[k] = v
	}

	keys := sortedKeys(doc.IndustryMultipliers)
	for _, key := range keys {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(key) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("industry_multipliers %q: %w", key, err)
		}
		cat.IndustryMultipliers = append(cat.IndustryMultipliers, Multiplier{
			Key:   key,
			Value: doc.IndustryMultipliers[key],
			re:    re,
		})
	}

	tables := []struct {
		name string
		src  map[string]CategorySpec
		dst  *Table
	}{
		{"strength", doc.Strength, &cat.Strength},
		{"industries", doc.Industries, &cat.Industries},
		{"use_cases", doc.UseCases, &cat.UseCases},
		{"enterprise", doc.Enterprise, &cat.Enterprise},
		{"scale", doc.Scale, &cat.Scale},
		{"urgency", doc.Urgency, &cat.Urgency},
		{"competitors", doc.Competitors, &cat.Competitors},
		{"geography", doc.Geography, &cat.Geography},
	}
	for _, t := range tables {
		table, err := compileTable(t.name, t.src)
		if err != nil {
			return nil, err
		}
		*t.dst = table
	}
	return cat, nil
}

// MustDefault compiles the embedded tables and panics if they are broken.
func MustDefault() *Catalog {
	cat, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("signals: embedded tables: %v", err))
	}
	return cat
}

func compileTable(name string, specs map[string]CategorySpec) (Table, error) {
	table := Table{Name: name}
	for _, key := range sortedKeys(specs) {
		spec := specs[key]
		c := Category{
			Name:    key,
			Label:   spec.Label,
			MinHits: spec.MinHits,
		}
		if c.Label == "" {
			c.Label = key
		}
		if c.MinHits <= 0 {
			c.MinHits = 1
		}
		if len(spec.Patterns) == 0 {
			return Table{}, fmt.Errorf("%s.%s: no patterns", name, key)
		}
		for i, p := range spec.Patterns {
			cp, err := compilePattern(p)
			if err != nil {
				return Table{}, fmt.Errorf("%s.%s.patterns[%d]: %w", name, key, i, err)
			}
			c.patterns = append(c.patterns, cp)
		}
		table.Categories = append(table.Categories, c)
	}
	return table, nil
}

func compilePattern(p Pattern) (compiledPattern, error) {
	phrase := strings.TrimSpace(p.Phrase)
	if phrase == "" {
		return compiledPattern{}, errors.New("empty phrase")
	}

	expr := `(?i)\b` + regexp.QuoteMeta(phrase) + `\b`
	if p.Regex {
		expr = `(?i)` + phrase
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return compiledPattern{}, err
	}

	weight := p.Weight
	if weight <= 0 {
		weight = 1.0
	}
	return compiledPattern{re: re, weight: weight}, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
