package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// cleanText collapses runs of whitespace and trims.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// spacedText joins every descendant text node with a single space, so
// adjacent block elements do not run together.
func spacedText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				if t := cleanText(c.Text()); t != "" {
					parts = append(parts, t)
				}
			case "script", "style", "#comment":
			default:
				walk(c)
			}
		})
	}
	walk(sel)
	return strings.Join(parts, " ")
}

// firstTextMatching returns the first descendant text node matching re.
func firstTextMatching(sel *goquery.Selection, re *regexp.Regexp) string {
	var found string
	sel.Contents().EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if goquery.NodeName(c) == "#text" {
			if t := c.Text(); re.MatchString(t) {
				found = cleanText(t)
				return false
			}
			return true
		}
		if t := firstTextMatching(c, re); t != "" {
			found = t
			return false
		}
		return true
	})
	return found
}
