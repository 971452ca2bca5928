// Package region groups outbound tags into region buckets by name.
package region

import (
	"strings"

	"github.com/samber/lo"
)

// Classifier returns the region tags a display name belongs to. A name may
// belong to several regions or to none.
type Classifier interface {
	Classify(name string) []string
}

type Region struct {
	Tag      string
	Keywords []string
}

// KeywordClassifier matches case-insensitive substrings. Keywords such as
// "us " keep their trailing space so that "Russia" does not count as US.
type KeywordClassifier struct {
	regions []Region
}

func NewKeywordClassifier(regions []Region) *KeywordClassifier {
	c := &KeywordClassifier{regions: make([]Region, 0, len(regions))}
	for _, r := range regions {
		c.regions = append(c.regions, Region{
			Tag:      r.Tag,
			Keywords: lo.Map(r.Keywords, func(k string, _ int) string { return strings.ToLower(k) }),
		})
	}
	return c
}

func (c *KeywordClassifier) Classify(name string) []string {
	lower := strings.ToLower(name)
	var out []string
	for _, r := range c.regions {
		if lo.SomeBy(r.Keywords, func(k string) bool { return k != "" && strings.Contains(lower, k) }) {
			out = append(out, r.Tag)
		}
	}
	return out
}

// Buckets classifies names in order. Every region tag in regionTags has an
// entry, possibly empty; duplicate names are kept.
func Buckets(c Classifier, regionTags []string, names []string) map[string][]string {
	out := make(map[string][]string, len(regionTags))
	for _, t := range regionTags {
		out[t] = []string{}
	}
	for _, name := range names {
		for _, t := range c.Classify(name) {
			if _, ok := out[t]; ok {
				out[t] = append(out[t], name)
			}
		}
	}
	return out
}
