package classifier

import (
	"html"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
)

var (
	markdownLinkPattern = regexp.MustCompile(`\[(.*?)\]\((https?://[^\s)]+)\)`)
	urlPattern          = regexp.MustCompile(`https?://\S+|www\.\S+`)
	htmlTagPattern      = regexp.MustCompile(`<[^>]*>`)
)

// VaderScorer is the default PolarityScorer: the VADER compound score of the
// text after markdown and links are stripped.
type VaderScorer struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewVaderScorer() *VaderScorer {
	return &VaderScorer{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (s *VaderScorer) Score(text string) float64 {
	plain := PlainText(text)
	if plain == "" {
		return 0
	}
	return s.analyzer.PolarityScores(plain).Compound
}

// PlainText renders markdown, drops markup and links, and collapses whitespace.
func PlainText(input string) string {
	input = markdownLinkPattern.ReplaceAllString(input, "$1")

	rendered := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	text := htmlTagPattern.ReplaceAllString(string(rendered), " ")
	text = html.UnescapeString(text)
	text = urlPattern.ReplaceAllString(text, "")

	return strings.Join(strings.Fields(text), " ")
}
