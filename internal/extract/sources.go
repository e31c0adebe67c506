package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/festival-crawler/internal/crawler"
)

var (
	untilPattern      = regexp.MustCompile(`(?i)until\s+([A-Za-z0-9 ,]+)\s+(\d{4})`)
	postedOnPattern   = regexp.MustCompile(`(?i)\bOn\s+\w+`)
	deadlineWord      = regexp.MustCompile(`(?i)Deadline`)
	afterColonPattern = regexp.MustCompile(`:\s*([A-Za-z0-9 ,]+)`)
	genericDeadline   = regexp.MustCompile(`Deadline[:\-]\s*([A-Za-z0-9 ,\-]+)`)
)

const (
	festivalWord      = "festival"
	openLabelWord     = "open"
	deadlineLabelWord = "deadline"
)

// extractBlogArchive reads asianfilmfestivals.com archive listings: one
// article per festival, with the deadline phrased as "until <date> <year>".
func extractBlogArchive(doc *goquery.Document, pageURL string, dates *DateParser) []crawler.FestivalRecord {
	var records []crawler.FestivalRecord
	doc.Find("div.main-post-list article.post-archive").Each(func(_ int, art *goquery.Selection) {
		name := cleanText(art.Find("h1, h2").First().Text())
		if name == "" {
			return
		}
		m := untilPattern.FindStringSubmatch(spacedText(art.Find("p").First()))
		if m == nil {
			return
		}
		deadline, ok := dates.Parse(m[1] + " " + m[2])
		if !ok {
			return
		}
		rec := crawler.FestivalRecord{
			Name:      name,
			Deadlines: []string{deadline},
			SourceURL: pageURL,
		}
		if posted := firstTextMatching(art, postedOnPattern); posted != "" {
			rec.ArticleDate, _ = dates.Parse(posted)
		}
		records = append(records, rec)
	})
	return records
}

// extractDeadlineTable reads the filmfestivalsdeadlines.com listing table:
// name, opening date and deadline columns after a header row.
func extractDeadlineTable(doc *goquery.Document, pageURL string, dates *DateParser) []crawler.FestivalRecord {
	table := doc.Find("table.table:not([id])").First()
	if table.Length() == 0 {
		return nil
	}
	var records []crawler.FestivalRecord
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		var cols []string
		row.Find("td").Each(func(_ int, td *goquery.Selection) {
			cols = append(cols, spacedText(td))
		})
		if len(cols) < 3 || cols[0] == "" {
			return
		}
		deadline, ok := dates.Parse(cols[2])
		if !ok {
			return
		}
		rec := crawler.FestivalRecord{
			Name:      cols[0],
			Deadlines: []string{deadline},
			SourceURL: pageURL,
		}
		rec.OpeningDate, _ = dates.Parse(cols[1])
		records = append(records, rec)
	})
	return records
}

// extractFilmFreeway handles festival detail pages and, failing that,
// browse listings.
func extractFilmFreeway(doc *goquery.Document, pageURL string, dates *DateParser) []crawler.FestivalRecord {
	if records := extractFilmFreewayDetail(doc, pageURL, dates); len(records) > 0 {
		return records
	}
	return extractFilmFreewayBrowse(doc, pageURL, dates)
}

// extractFilmFreewayDetail reads the "Dates & Deadlines" sidebar of a
// festival profile into a single record.
func extractFilmFreewayDetail(doc *goquery.Document, pageURL string, dates *DateParser) []crawler.FestivalRecord {
	list := doc.Find("aside.sidebar--festival-submission-info ul.ProfileFestival-datesDeadlines").First()
	if list.Length() == 0 {
		return nil
	}

	var items []crawler.DateItem
	list.Find("li.ProfileFestival-datesDeadlines-dateGroup").Each(func(_ int, li *goquery.Selection) {
		var date string
		timeEl := li.Find("time.ProfileFestival-datesDeadlines-time").First()
		if attr, ok := timeEl.Attr("datetime"); ok {
			date = attr
		} else if timeEl.Length() > 0 {
			date, _ = dates.Parse(timeEl.Text())
		}
		label := cleanText(li.Find("div.ProfileFestival-datesDeadlines-deadline").First().Text())
		if date != "" && label != "" {
			items = append(items, crawler.DateItem{Date: date, Label: label})
		}
	})
	if len(items) == 0 {
		return nil
	}

	nameEl := doc.Find("h1.ProfileFestival-profileTitle").First()
	if nameEl.Length() == 0 {
		nameEl = doc.Find("h1").First()
	}
	rec := crawler.FestivalRecord{
		Name:      cleanText(nameEl.Text()),
		Deadlines: []string{},
		SourceURL: pageURL,
		DateItems: items,
	}
	for _, item := range items {
		label := strings.ToLower(item.Label)
		if rec.OpeningDate == "" && strings.Contains(label, openLabelWord) {
			rec.OpeningDate = item.Date
		}
		if strings.Contains(label, deadlineLabelWord) {
			rec.Deadlines = append(rec.Deadlines, item.Date)
		}
	}
	return []crawler.FestivalRecord{rec}
}

// extractFilmFreewayBrowse reads festival cards from browse listings.
func extractFilmFreewayBrowse(doc *goquery.Document, pageURL string, dates *DateParser) []crawler.FestivalRecord {
	var records []crawler.FestivalRecord
	doc.Find("article.BrowseFestivalsCard").Each(func(_ int, card *goquery.Selection) {
		name := cleanText(card.Find("a.BrowseFestivalsLink").First().Text())
		if name == "" {
			return
		}
		text := firstTextMatching(card, deadlineWord)
		m := afterColonPattern.FindStringSubmatch(text)
		if m == nil {
			return
		}
		deadline, ok := dates.Parse(m[1])
		if !ok {
			return
		}
		records = append(records, crawler.FestivalRecord{
			Name:      name,
			Deadlines: []string{deadline},
			Location:  cleanText(card.Find("div.GridCell-5 > div").First().Text()),
			SourceURL: pageURL,
		})
	})
	return records
}

// extractGeneric needs an h1 mentioning "Festival" and a "Deadline:" phrase.
// When the phrase is present but its date does not parse, the record is
// emitted with no deadlines.
func extractGeneric(doc *goquery.Document, pageURL string, dates *DateParser) []crawler.FestivalRecord {
	var name string
	doc.Find("h1").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		text := cleanText(h.Text())
		if strings.Contains(strings.ToLower(text), festivalWord) {
			name = text
			return false
		}
		return true
	})
	if name == "" {
		return nil
	}
	m := genericDeadline.FindStringSubmatch(spacedText(doc.Selection))
	if m == nil {
		return nil
	}

	rec := crawler.FestivalRecord{
		Name:      name,
		Deadlines: []string{},
		SourceURL: pageURL,
	}
	if deadline, ok := dates.Parse(m[1]); ok {
		rec.Deadlines = append(rec.Deadlines, deadline)
	}
	return []crawler.FestivalRecord{rec}
}
