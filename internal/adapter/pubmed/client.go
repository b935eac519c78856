package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmoniz22/biomedical-rag/features/paper"
)

const fetchBatchSize = 200

// subjectQueries maps subject areas to PubMed term expressions mixing MeSH
// headings and title/abstract keywords.
var subjectQueries = map[string]string{
	"cardiology":       "cardiology[MeSH Terms] OR cardiovascular[tiab] OR heart disease[tiab]",
	"oncology":         "oncology[MeSH Terms] OR cancer[tiab] OR neoplasms[tiab]",
	"neurology":        "neurology[MeSH Terms] OR neurological[tiab] OR brain disease[tiab]",
	"immunology":       "immunology[MeSH Terms] OR immune[tiab] OR autoimmune[tiab]",
	"endocrinology":    "endocrinology[MeSH Terms] OR diabetes[tiab] OR hormone[tiab]",
	"gastroenterology": "gastroenterology[MeSH Terms] OR digestive[tiab] OR gastrointestinal[tiab]",
	"nephrology":       "nephrology[MeSH Terms] OR kidney[tiab] OR renal[tiab]",
	"pulmonology":      "pulmonology[MeSH Terms] OR lung[tiab] OR pulmonary[tiab]",
	"rheumatology":     "rheumatology[MeSH Terms] OR arthritis[tiab] OR autoimmune[tiab]",
	"dermatology":      "dermatology[MeSH Terms] OR skin[tiab] OR dermatology[tiab]",
	"ophthalmology":    "ophthalmology[MeSH Terms] OR eye[tiab] OR vision[tiab]",
	"psychiatry":       "psychiatry[MeSH Terms] OR mental health[tiab] OR depression[tiab]",
	"pediatrics":       "pediatrics[MeSH Terms] OR child[tiab] OR pediatric[tiab]",
	"geriatrics":       "geriatrics[MeSH Terms] OR elderly[tiab] OR aging[tiab]",
}

// Client talks to the NCBI eutils API: esearch for pmid lists, efetch for
// article records.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	areaPause  time.Duration
	batchPause time.Duration
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		areaPause:  time.Second,
		batchPause: 100 * time.Millisecond,
	}
}

// FetchCandidates searches and fetches papers for every subject area, tagging
// each record with its area. One failed eutils call fails the whole fetch:
// the caller treats this as job-fatal.
func (c *Client) FetchCandidates(ctx context.Context, subjectAreas []string, start, end *time.Time, maxPerArea int) ([]paper.Candidate, error) {
	var all []paper.Candidate

	for i, area := range subjectAreas {
		pmids, err := c.search(ctx, buildSubjectQuery(area), start, end, maxPerArea)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", area, err)
		}

		candidates, err := c.fetchDetails(ctx, pmids)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", area, err)
		}
		for j := range candidates {
			candidates[j].SubjectAreas = []string{area}
		}
		all = append(all, candidates...)

		slog.InfoContext(ctx, "fetched papers for subject area", "area", area, "count", len(candidates))

		if i < len(subjectAreas)-1 && c.areaPause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.areaPause):
			}
		}
	}

	return all, nil
}

func buildSubjectQuery(area string) string {
	if q, ok := subjectQueries[strings.ToLower(area)]; ok {
		return q
	}
	return fmt.Sprintf("%q[tiab]", area)
}

type esearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

func (c *Client) search(ctx context.Context, term string, start, end *time.Time, maxResults int) ([]string, error) {
	if start != nil || end != nil {
		var dateStr string
		if start != nil {
			dateStr += start.Format("2006/01/02") + "[PDAT] : "
		}
		if end != nil {
			dateStr += end.Format("2006/01/02") + "[PDAT]"
		}
		term = fmt.Sprintf("(%s) AND (%s)", term, dateStr)
	}

	params := url.Values{
		"db":         {"pubmed"},
		"term":       {term},
		"retmax":     {strconv.Itoa(maxResults)},
		"retmode":    {"json"},
		"usehistory": {"y"},
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/esearch.fcgi?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("esearch returned status %d", resp.StatusCode)
	}

	var parsed esearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Result.IDList, nil
}

func (c *Client) fetchDetails(ctx context.Context, pmids []string) ([]paper.Candidate, error) {
	var candidates []paper.Candidate

	for i := 0; i < len(pmids); i += fetchBatchSize {
		end := i + fetchBatchSize
		if end > len(pmids) {
			end = len(pmids)
		}

		batch, err := c.fetchBatch(ctx, pmids[i:end])
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, batch...)

		if end < len(pmids) && c.batchPause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.batchPause):
			}
		}
	}
	return candidates, nil
}

func (c *Client) fetchBatch(ctx context.Context, pmids []string) ([]paper.Candidate, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(pmids, ",")},
		"retmode": {"xml"},
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/efetch.fcgi?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("efetch returned status %d", resp.StatusCode)
	}

	var articleSet pubmedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&articleSet); err != nil {
		return nil, fmt.Errorf("parse efetch xml: %w", err)
	}

	candidates := make([]paper.Candidate, 0, len(articleSet.Articles))
	for _, a := range articleSet.Articles {
		candidates = append(candidates, a.toCandidate())
	}
	return candidates, nil
}
