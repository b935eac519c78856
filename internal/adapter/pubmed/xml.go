package pubmed

import (
	"strconv"
	"strings"
	"time"

	"github.com/dmoniz22/biomedical-rag/features/paper"
)

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Texts []string `xml:"AbstractText"`
			} `xml:"Abstract"`
			Journal struct {
				Title string `xml:"Title"`
				Issue struct {
					PubDate struct {
						Year  string `xml:"Year"`
						Month string `xml:"Month"`
						Day   string `xml:"Day"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			Authors []struct {
				LastName string `xml:"LastName"`
				ForeName string `xml:"ForeName"`
			} `xml:"AuthorList>Author"`
			PublicationTypes []string `xml:"PublicationTypeList>PublicationType"`
		} `xml:"Article"`
		MeshHeadings []struct {
			Descriptor string `xml:"DescriptorName"`
		} `xml:"MeshHeadingList>MeshHeading"`
		Keywords []string `xml:"KeywordList>Keyword"`
	} `xml:"MedlineCitation"`
	PubmedData struct {
		ArticleIDs []struct {
			IDType string `xml:"IdType,attr"`
			Value  string `xml:",chardata"`
		} `xml:"ArticleIdList>ArticleId"`
	} `xml:"PubmedData"`
}

var monthNames = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

func (a pubmedArticle) toCandidate() paper.Candidate {
	c := paper.Candidate{
		PMID:     strings.TrimSpace(a.Citation.PMID),
		Title:    strings.TrimSpace(a.Citation.Article.Title),
		Abstract: strings.TrimSpace(strings.Join(a.Citation.Article.Abstract.Texts, " ")),
		Journal:  strings.TrimSpace(a.Citation.Article.Journal.Title),
	}

	for _, id := range a.PubmedData.ArticleIDs {
		if id.IDType == "doi" {
			c.DOI = strings.TrimSpace(id.Value)
			break
		}
	}

	if date, ok := parsePubDate(a.Citation.Article.Journal.Issue.PubDate.Year,
		a.Citation.Article.Journal.Issue.PubDate.Month,
		a.Citation.Article.Journal.Issue.PubDate.Day); ok {
		c.PublicationDate = &date
	}

	for _, mh := range a.Citation.MeshHeadings {
		if mh.Descriptor != "" {
			c.MeshTerms = append(c.MeshTerms, mh.Descriptor)
		}
	}
	for _, kw := range a.Citation.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			c.Keywords = append(c.Keywords, kw)
		}
	}
	for _, au := range a.Citation.Article.Authors {
		name := strings.TrimSpace(au.ForeName + " " + au.LastName)
		if name != "" {
			c.Authors = append(c.Authors, name)
		}
	}
	if len(a.Citation.Article.PublicationTypes) > 0 {
		c.PublicationType = a.Citation.Article.PublicationTypes[0]
	}

	return c
}

func parsePubDate(year, month, day string) (time.Time, bool) {
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return time.Time{}, false
	}

	m := 1
	monthStr := strings.TrimSpace(month)
	if monthStr != "" {
		if n, err := strconv.Atoi(monthStr); err == nil {
			m = n
		} else if n, ok := monthNames[strings.ToLower(monthStr)[:min(3, len(monthStr))]]; ok {
			m = n
		}
	}

	d := 1
	if n, err := strconv.Atoi(strings.TrimSpace(day)); err == nil {
		d = n
	}

	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), true
}
