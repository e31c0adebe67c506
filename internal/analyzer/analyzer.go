// Package analyzer discovers same-host outbound links and pagination
// continuations in fetched markup.
package analyzer

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nextTokens are matched, in order, against lower-cased anchor text when no
// rel="next" link exists.
var nextTokens = []string{"next", ">", "»", "próximo", "seguinte"}

// Analyzer implements crawler.PageAnalyzer using goquery.
type Analyzer struct{}

// New returns an Analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// FindLinks returns the distinct http(s) links in markup whose host equals
// the host of baseURL. Fragments are dropped. The result is sorted.
func (a *Analyzer) FindLinks(markup []byte, baseURL string) ([]string, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, ok := resolve(base, href)
		if !ok || !strings.EqualFold(u.Host, base.Host) {
			return
		}
		u.Fragment = ""
		u.RawFragment = ""
		seen[u.String()] = struct{}{}
	})

	links := make([]string, 0, len(seen))
	for link := range seen {
		links = append(links, link)
	}
	sort.Strings(links)
	return links, nil
}

// FindNextPage returns the single pagination successor of the page, if any.
// An explicit rel="next" anchor wins over text matches.
func (a *Analyzer) FindNextPage(markup []byte, baseURL string) (string, bool, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return "", false, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return "", false, fmt.Errorf("parse markup: %w", err)
	}

	if href, ok := doc.Find(`a[rel~="next"][href]`).First().Attr("href"); ok {
		if u, ok := resolve(base, href); ok {
			return u.String(), true, nil
		}
	}

	anchors := doc.Find("a[href]")
	for _, token := range nextTokens {
		var found string
		anchors.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.ToLower(strings.TrimSpace(s.Text()))
			if !strings.Contains(text, token) {
				return true
			}
			href, _ := s.Attr("href")
			u, ok := resolve(base, href)
			if !ok {
				return true
			}
			found = u.String()
			return false
		})
		if found != "" {
			return found, true, nil
		}
	}
	return "", false, nil
}

func parseBase(baseURL string) (*url.URL, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url %q has no host", baseURL)
	}
	return base, nil
}

// resolve turns href into an absolute http(s) URL, rejecting fragment-only,
// mailto and javascript references.
func resolve(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") {
		return nil, false
	}
	u, err := base.Parse(href)
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	return u, true
}
