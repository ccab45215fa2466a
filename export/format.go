package export

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"

	ge "github.com/mimiro-io/grade-export"
)

type DisplayType string

const (
	DisplayReal       DisplayType = "real"
	DisplayPercentage DisplayType = "percentage"
	DisplayLetter     DisplayType = "letter"
)

const (
	defaultDecimals = 2
	noGrade         = "-"
)

var displayTitles = map[DisplayType]string{
	DisplayReal:       "Real",
	DisplayPercentage: "Percentage",
	DisplayLetter:     "Letter",
}

// ParseDisplayTypes validates the configured display types, the default is real.
func ParseDisplayTypes(names []string) ([]DisplayType, error) {
	if len(names) == 0 {
		return []DisplayType{DisplayReal}, nil
	}
	res := make([]DisplayType, 0, len(names))
	for _, name := range names {
		dt := DisplayType(strings.ToLower(strings.TrimSpace(name)))
		if _, ok := displayTitles[dt]; !ok {
			return nil, ge.Errorf(ge.LayerErrorBadParameter, "unknown grade display type %q", name)
		}
		res = append(res, dt)
	}
	return res, nil
}

type LetterBoundary struct {
	Boundary decimal.Decimal
	Letter   string
}

// DefaultLetters are the site default letter boundaries in percent, highest first.
var DefaultLetters = []LetterBoundary{
	{decimal.NewFromInt(93), "A"},
	{decimal.NewFromInt(90), "A-"},
	{decimal.NewFromInt(87), "B+"},
	{decimal.NewFromInt(83), "B"},
	{decimal.NewFromInt(80), "B-"},
	{decimal.NewFromInt(77), "C+"},
	{decimal.NewFromInt(73), "C"},
	{decimal.NewFromInt(70), "C-"},
	{decimal.NewFromInt(67), "D+"},
	{decimal.NewFromInt(60), "D"},
	{decimal.NewFromInt(0), "F"},
}

var hundred = decimal.NewFromInt(100)

// FormatGrade renders the final grade of g for one display type.
func FormatGrade(g *ge.GradeValue, item *ge.GradeItem, dt DisplayType, decimals int) string {
	if g == nil || !g.FinalGrade.Valid {
		return noGrade
	}
	value := g.FinalGrade.Decimal

	switch dt {
	case DisplayPercentage:
		pct, ok := percentage(value, item)
		if !ok {
			return ""
		}
		return pct.StringFixed(int32(decimals)) + " %"
	case DisplayLetter:
		pct, ok := percentage(value, item)
		if !ok {
			return ""
		}
		pct = decimal.Max(decimal.Zero, decimal.Min(pct, hundred)).Round(5)
		for _, l := range DefaultLetters {
			if pct.GreaterThanOrEqual(l.Boundary) {
				return l.Letter
			}
		}
		return ""
	default:
		return value.StringFixed(int32(decimals))
	}
}

func percentage(value decimal.Decimal, item *ge.GradeItem) (decimal.Decimal, bool) {
	span := item.GradeMax.Sub(item.GradeMin)
	if span.IsZero() {
		return decimal.Zero, false
	}
	return value.Sub(item.GradeMin).Mul(hundred).Div(span), true
}

// FormatFeedback returns the feedback as plain text. Rich text formats have their
// markup removed and entities decoded.
func FormatFeedback(f *ge.FeedbackValue) string {
	if f == nil || f.Feedback == "" {
		return ""
	}
	switch f.Format {
	case ge.FeedbackFormatPlain, ge.FeedbackFormatMarkdown:
		return f.Feedback
	default:
		return stripTags(f.Feedback)
	}
}

func stripTags(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input, keep what was read
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" || string(name) == "p" {
				if b.Len() > 0 {
					b.WriteByte('\n')
				}
			}
		}
	}
}
