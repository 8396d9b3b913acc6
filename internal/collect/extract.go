package collect

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var labelPolicy = bluemonday.StrictPolicy()

const (
	defaultMaxItems = 100
	maxLabelLen     = 120
)

// SanitizeLabel strips markup and entities from a product label and
// collapses whitespace.
func SanitizeLabel(s string) string {
	s = labelPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	s = strings.ToValidUTF8(s, "")
	return CleanText(s)
}

// ExtractCandidates pulls (label, price) pairs out of a parsed page.
// Card selectors are tried in order; the first one that yields results
// wins. When no card selector matches anything, a loose scan for BRL
// price tokens runs over the whole document.
func ExtractCandidates(doc *goquery.Document, sel SelectorSet, maxItems int) []Candidate {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}

	for _, cardSel := range sel.Cards {
		cardSel = strings.TrimSpace(cardSel)
		if cardSel == "" {
			continue
		}

		var found []Candidate
		doc.Find(cardSel).EachWithBreak(func(_ int, card *goquery.Selection) bool {
			if cand, ok := candidateFromCard(card, sel); ok {
				found = append(found, cand)
			}
			return len(found) < maxItems
		})

		if len(found) > 0 {
			return found
		}
	}

	return extractLoose(doc, maxItems)
}

// candidateFromCard reads one product card. The label comes from the first
// name selector with text, the price from the first price selector whose
// text parses. Both fall back to the card's own text.
func candidateFromCard(card *goquery.Selection, sel SelectorSet) (Candidate, bool) {
	var label string
	for _, nameSel := range sel.Names {
		nameSel = strings.TrimSpace(nameSel)
		if nameSel == "" {
			continue
		}
		if text := SanitizeLabel(card.Find(nameSel).First().Text()); text != "" {
			label = text
			break
		}
	}
	if label == "" {
		label = truncateLabel(SanitizeLabel(card.Text()), maxLabelLen)
	}

	var price float64
	var priced bool
	for _, priceSel := range sel.Prices {
		priceSel = strings.TrimSpace(priceSel)
		if priceSel == "" {
			continue
		}
		if v, ok := ParsePrice(card.Find(priceSel).First().Text()); ok {
			price, priced = v, true
			break
		}
	}
	if !priced {
		price, priced = ParsePrice(card.Text())
	}

	if !priced || price <= 0 || label == "" {
		return Candidate{}, false
	}
	return Candidate{Label: label, Price: price}, true
}

// extractLoose scans leaf nodes for "R$" tokens when structured selectors
// found nothing. The label is the node's text with the price token removed,
// or the parent's text when the node alone is too short.
func extractLoose(doc *goquery.Document, maxItems int) []Candidate {
	var found []Candidate
	seen := make(map[string]bool)

	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		text := s.Text()
		if !strings.Contains(text, "R$") {
			return true
		}

		token, price, ok := FindPrice(text)
		if !ok || price <= 0 {
			return true
		}

		label := SanitizeLabel(strings.Replace(text, token, " ", 1))
		if len([]rune(label)) < 3 {
			if parent := s.Parent(); parent.Length() > 0 {
				label = SanitizeLabel(strings.Replace(parent.Text(), token, " ", 1))
			}
		}
		label = truncateLabel(label, maxLabelLen)
		if len([]rune(label)) < 3 || seen[label] {
			return true
		}

		seen[label] = true
		found = append(found, Candidate{Label: label, Price: price})
		return len(found) < maxItems
	})

	return found
}
