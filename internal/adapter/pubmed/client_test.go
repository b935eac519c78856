package pubmed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const efetchFixture = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>12345</PMID>
      <Article>
        <Journal>
          <JournalIssue>
            <PubDate>
              <Year>2023</Year>
              <Month>Mar</Month>
              <Day>15</Day>
            </PubDate>
          </JournalIssue>
          <Title>The Lancet Oncology</Title>
        </Journal>
        <ArticleTitle>Immunotherapy in Solid Tumors</ArticleTitle>
        <Abstract>
          <AbstractText>Background paragraph.</AbstractText>
          <AbstractText>Results paragraph.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author>
            <LastName>Doe</LastName>
            <ForeName>Jane</ForeName>
          </Author>
        </AuthorList>
        <PublicationTypeList>
          <PublicationType>Journal Article</PublicationType>
        </PublicationTypeList>
      </Article>
      <MeshHeadingList>
        <MeshHeading>
          <DescriptorName>Immunotherapy</DescriptorName>
        </MeshHeading>
        <MeshHeading>
          <DescriptorName>Neoplasms</DescriptorName>
        </MeshHeading>
      </MeshHeadingList>
      <KeywordList>
        <Keyword>checkpoint inhibitors</Keyword>
      </KeywordList>
    </MedlineCitation>
    <PubmedData>
      <ArticleIdList>
        <ArticleId IdType="pubmed">12345</ArticleId>
        <ArticleId IdType="doi">10.1000/onco.12345</ArticleId>
      </ArticleIdList>
    </PubmedData>
  </PubmedArticle>
</PubmedArticleSet>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(server.URL, "")
	c.areaPause = 0
	c.batchPause = 0
	return c
}

func TestFetchCandidates(t *testing.T) {
	var searchTerm string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/esearch.fcgi":
			searchTerm = r.URL.Query().Get("term")
			w.Write([]byte(`{"esearchresult":{"idlist":["12345"]}}`))
		case "/efetch.fcgi":
			assert.Equal(t, "12345", r.URL.Query().Get("id"))
			w.Write([]byte(efetchFixture))
		default:
			http.NotFound(w, r)
		}
	})

	candidates, err := c.FetchCandidates(context.Background(), []string{"oncology"}, nil, nil, 100)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	got := candidates[0]
	assert.Equal(t, "12345", got.PMID)
	assert.Equal(t, "10.1000/onco.12345", got.DOI)
	assert.Equal(t, "Immunotherapy in Solid Tumors", got.Title)
	assert.Equal(t, "Background paragraph. Results paragraph.", got.Abstract)
	assert.Equal(t, "The Lancet Oncology", got.Journal)
	assert.Equal(t, []string{"Immunotherapy", "Neoplasms"}, got.MeshTerms)
	assert.Equal(t, []string{"checkpoint inhibitors"}, got.Keywords)
	assert.Equal(t, []string{"Jane Doe"}, got.Authors)
	assert.Equal(t, "Journal Article", got.PublicationType)
	assert.Equal(t, []string{"oncology"}, got.SubjectAreas)

	require.NotNil(t, got.PublicationDate)
	assert.Equal(t, time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), *got.PublicationDate)

	// Known areas expand to their curated term expression.
	assert.Contains(t, searchTerm, "oncology[MeSH Terms]")
}

func TestFetchCandidates_DateRange(t *testing.T) {
	var searchTerm string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/esearch.fcgi":
			searchTerm = r.URL.Query().Get("term")
			w.Write([]byte(`{"esearchresult":{"idlist":[]}}`))
		default:
			http.NotFound(w, r)
		}
	})

	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)
	candidates, err := c.FetchCandidates(context.Background(), []string{"oncology"}, &start, &end, 100)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	assert.Contains(t, searchTerm, "2022/01/01[PDAT] : 2022/12/31[PDAT]")
}

func TestFetchCandidates_UnknownAreaFallsBack(t *testing.T) {
	var searchTerm string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/esearch.fcgi" {
			searchTerm = r.URL.Query().Get("term")
		}
		w.Write([]byte(`{"esearchresult":{"idlist":[]}}`))
	})

	_, err := c.FetchCandidates(context.Background(), []string{"exotic specialty"}, nil, nil, 100)
	require.NoError(t, err)
	assert.Contains(t, searchTerm, `"exotic specialty"[tiab]`)
}

func TestFetchCandidates_SearchErrorAbortsFetch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := c.FetchCandidates(context.Background(), []string{"oncology"}, nil, nil, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search oncology")
}

func TestParsePubDate(t *testing.T) {
	d, ok := parsePubDate("2021", "7", "4")
	require.True(t, ok)
	assert.Equal(t, time.Date(2021, 7, 4, 0, 0, 0, 0, time.UTC), d)

	// Month names, defaulting day to the first.
	d, ok = parsePubDate("2021", "December", "")
	require.True(t, ok)
	assert.Equal(t, time.Date(2021, 12, 1, 0, 0, 0, 0, time.UTC), d)

	// Year is mandatory.
	_, ok = parsePubDate("", "7", "4")
	assert.False(t, ok)

	_, ok = parsePubDate("2021", "13", "")
	assert.False(t, ok)
}
