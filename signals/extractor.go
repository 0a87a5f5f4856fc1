// Package signals extracts keyword-category features from free text.
//
// Tables are loaded once (embedded YAML, optional override file, env weight
// overrides) and compiled into an immutable Catalog. Extract is a pure
// function of its text and table.
package signals

import (
	"strings"
)

// Scale bucket names, lowest first. Ties resolve to the earlier bucket.
const (
	ScaleSmall  = "small"
	ScaleMedium = "medium"
	ScaleLarge  = "large"
)

// ScaleBuckets lists the scale buckets in tie-break order.
var ScaleBuckets = []string{ScaleSmall, ScaleMedium, ScaleLarge}

// Feature is the extraction result for one category.
type Feature struct {
	Category string
	Label    string
	Count    int
	Weighted float64
	Present  bool
	Matches  []string
}

// Features holds one Feature per category, in table order.
type Features []Feature

// Get returns the feature for the named category, or a zero Feature.
func (f Features) Get(name string) Feature {
	for _, feat := range f {
		if feat.Category == name {
			return feat
		}
	}
	return Feature{Category: name}
}

// Strongest returns the feature with the highest weighted strength.
// The first category wins ties; an all-zero set returns the first feature.
func (f Features) Strongest() Feature {
	if len(f) == 0 {
		return Feature{}
	}
	best := f[0]
	for _, feat := range f[1:] {
		if feat.Weighted > best.Weighted {
			best = feat
		}
	}
	return best
}

// Total is the sum of match counts across all categories.
func (f Features) Total() int {
	total := 0
	for _, feat := range f {
		total += feat.Count
	}
	return total
}

// PresentLabels returns the labels of categories that reached their minimum hits.
func (f Features) PresentLabels() []string {
	labels := []string{}
	for _, feat := range f {
		if feat.Present {
			labels = append(labels, feat.Label)
		}
	}
	return labels
}

// MatchedPhrases returns the distinct matched phrases across all categories.
func (f Features) MatchedPhrases() []string {
	seen := make(map[string]struct{})
	phrases := []string{}
	for _, feat := range f {
		for _, m := range feat.Matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			phrases = append(phrases, m)
		}
	}
	return phrases
}

// Extract counts the occurrences of every category of table in text.
// Empty text yields all-zero features.
func Extract(text string, table Table) Features {
	features := make(Features, 0, len(table.Categories))
	blank := strings.TrimSpace(text) == ""

	for _, c := range table.Categories {
		feat := Feature{
			Category: c.Name,
			Label:    c.Label,
			Matches:  []string{},
		}
		if !blank {
			seen := make(map[string]struct{})
			for _, p := range c.patterns {
				hits := p.re.FindAllString(text, -1)
				if len(hits) == 0 {
					continue
				}
				feat.Count += len(hits)
				feat.Weighted += float64(len(hits)) * p.weight
				for _, h := range hits {
					h = strings.ToLower(h)
					if _, ok := seen[h]; !ok {
						seen[h] = struct{}{}
						feat.Matches = append(feat.Matches, h)
					}
				}
			}
		}
		feat.Present = feat.Count >= c.MinHits
		features = append(features, feat)
	}
	return features
}
