package classifier

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/WamalwaSydney/civicpulse/internal/domain"
)

const (
	DefaultAdjustmentWeight  = 0.1
	DefaultCategoryThreshold = 0.02
	MaxTags                  = 3
)

// PolarityScorer estimates the polarity of text. Implementations return a
// value in [-1, 1] and 0 for neutral or unknown text.
type PolarityScorer interface {
	Score(text string) float64
}

// ScorerFunc adapts a plain function to PolarityScorer.
type ScorerFunc func(text string) float64

func (f ScorerFunc) Score(text string) float64 { return f(text) }

// Config tunes the classifier. Zero values select the defaults.
type Config struct {
	AdjustmentWeight  float64
	CategoryThreshold float64
}

type Result struct {
	Score    float64               `json:"score"`
	Label    domain.SentimentLabel `json:"label"`
	Tags     []string              `json:"tags"`
	Location string                `json:"location,omitempty"`
}

type category struct {
	name     string
	keywords map[string]struct{}
}

type Classifier struct {
	scorer    PolarityScorer
	weight    float64
	threshold float64

	categories []category
	positive   []string
	negative   []string
	patterns   []PatternRule
	adminUnits map[string]struct{}
	places     map[string]struct{}
}

// New compiles lex into lookup tables. lex is copied, later changes to it
// have no effect. A nil scorer contributes a base polarity of 0.
func New(lex Lexicon, scorer PolarityScorer, cfg Config) *Classifier {
	if scorer == nil {
		scorer = ScorerFunc(func(string) float64 { return 0 })
	}
	if cfg.AdjustmentWeight == 0 {
		cfg.AdjustmentWeight = DefaultAdjustmentWeight
	}
	if cfg.CategoryThreshold == 0 {
		cfg.CategoryThreshold = DefaultCategoryThreshold
	}

	c := &Classifier{
		scorer:     scorer,
		weight:     cfg.AdjustmentWeight,
		threshold:  cfg.CategoryThreshold,
		positive:   lowerAll(lex.PositiveIndicators),
		negative:   lowerAll(lex.NegativeIndicators),
		adminUnits: toSet(lex.AdminUnits),
		places:     toSet(lex.Places),
	}

	for name, keywords := range lex.Categories {
		if len(keywords) == 0 {
			continue
		}
		c.categories = append(c.categories, category{name: name, keywords: toSet(keywords)})
	}
	sort.Slice(c.categories, func(i, j int) bool { return c.categories[i].name < c.categories[j].name })

	for _, rule := range lex.Patterns {
		compiled := PatternRule{Phrases: lowerAll(rule.Phrases)}
		for _, subj := range rule.Subjects {
			compiled.Subjects = append(compiled.Subjects, PatternSubject{Category: subj.Category, Words: lowerAll(subj.Words)})
		}
		c.patterns = append(c.patterns, compiled)
	}

	return c
}

// Classify scores and tags text and infers a location.
func (c *Classifier) Classify(text string) Result {
	return c.ClassifyWithLocation(text, "")
}

// ClassifyWithLocation is Classify, but a non-empty known location is kept
// and no location is inferred.
func (c *Classifier) ClassifyWithLocation(text, known string) Result {
	result := Result{Label: domain.SentimentNeutral, Tags: []string{}, Location: known}

	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return result
	}

	tokens := tokenize(lower)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		tokenSet[tok] = struct{}{}
	}

	result.Score = c.score(text, tokenSet)
	result.Label = domain.LabelForScore(result.Score)
	result.Tags = c.categorize(lower, tokenSet)
	if known == "" {
		result.Location = c.extractLocation(lower)
	}
	return result
}

func (c *Classifier) score(text string, tokens map[string]struct{}) float64 {
	base := c.basePolarity(text)

	positive := countPresent(c.positive, tokens)
	negative := countPresent(c.negative, tokens)
	adjustment := float64(positive-negative) * c.weight

	return clamp(base+adjustment, -1, 1)
}

func (c *Classifier) basePolarity(text string) (polarity float64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Polarity scorer panicked, using neutral base", "panic", r)
			polarity = 0
		}
	}()

	p := c.scorer.Score(text)
	if math.IsNaN(p) {
		return 0
	}
	return clamp(p, -1, 1)
}

type categoryScore struct {
	name  string
	score float64
}

func (c *Classifier) categorize(lower string, tokens map[string]struct{}) []string {
	var scored []categoryScore
	for _, cat := range c.categories {
		matches := 0
		for kw := range cat.keywords {
			if _, ok := tokens[kw]; ok {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		score := float64(matches) / float64(len(cat.keywords))
		if score >= c.threshold {
			scored = append(scored, categoryScore{name: cat.name, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].name < scored[j].name
	})

	tags := make([]string, 0, MaxTags)
	for _, s := range scored {
		if len(tags) == MaxTags {
			break
		}
		tags = append(tags, s.name)
	}
	if len(tags) > 0 {
		return tags
	}

	return c.inferFromPatterns(lower)
}

func (c *Classifier) inferFromPatterns(lower string) []string {
	tags := make([]string, 0, MaxTags)
	seen := make(map[string]struct{})

	for _, rule := range c.patterns {
		if len(tags) == MaxTags {
			break
		}
		if !containsAny(lower, rule.Phrases) {
			continue
		}
		for _, subj := range rule.Subjects {
			if !containsAny(lower, subj.Words) {
				continue
			}
			if _, dup := seen[subj.Category]; !dup {
				seen[subj.Category] = struct{}{}
				tags = append(tags, subj.Category)
			}
			break
		}
	}
	return tags
}

func (c *Classifier) extractLocation(lower string) string {
	words := strings.Fields(lower)
	for i := range words {
		words[i] = trimPunct(words[i])
	}

	for i, word := range words {
		if _, ok := c.adminUnits[word]; ok {
			if i > 0 && words[i-1] != "" {
				return titleCase(words[i-1]) + " " + titleCase(word)
			}
			continue
		}
		if _, ok := c.places[word]; ok {
			return titleCase(word)
		}
	}
	return ""
}

// tokenize splits on anything that is not a letter, digit or underscore.
func tokenize(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

func trimPunct(word string) string {
	return strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}

// titleCase needs a fresh Caser per call, Casers are not goroutine safe.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

func countPresent(words []string, tokens map[string]struct{}) int {
	n := 0
	for _, w := range words {
		if _, ok := tokens[w]; ok {
			n++
		}
	}
	return n
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range lowerAll(words) {
		set[w] = struct{}{}
	}
	return set
}
