package sources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/listenarr/listenarr/pkg/models"
	"github.com/listenarr/listenarr/pkg/titles"
)

// CommunityScraper queries a community metadata site's search endpoint.
// Good descriptions and narrator credits, but user-submitted series data,
// so it never outranks the bibliographic source on pinned fields.
type CommunityScraper struct {
	BaseURL string
	Client  *http.Client
}

func NewCommunityScraper(baseURL string, client *http.Client) *CommunityScraper {
	if client == nil {
		client = http.DefaultClient
	}
	return &CommunityScraper{BaseURL: baseURL, Client: client}
}

func (a *CommunityScraper) Name() string {
	return models.SourceCommunityScraper
}

type scraperResult struct {
	Title          string   `json:"title"`
	Author         string   `json:"author"`
	Narrator       string   `json:"narrator"`
	Series         string   `json:"series"`
	SeriesPosition *float64 `json:"series_position"`
	Description    string   `json:"description"`
	Duration       string   `json:"duration"`
	URL            string   `json:"url"`
}

type scraperResponse struct {
	Results []scraperResult `json:"results"`
}

func (a *CommunityScraper) Find(ctx context.Context, target TargetDescriptor) ([]AcquisitionResult, error) {
	q := strings.TrimSpace(target.Title + " " + target.Author)
	if q == "" && target.SeriesName != "" {
		q = target.SeriesName
	}
	if q == "" {
		return nil, Permanent(nil, "empty target descriptor")
	}

	params := url.Values{}
	params.Set("q", q)
	params.Set("format", "json")

	var resp scraperResponse
	err := getJSON(ctx, a.Client, a.BaseURL+"/search?"+params.Encode(), nil, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, NotFound("no results matched")
	}

	results := make([]AcquisitionResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		fields := map[string]string{
			models.FieldTitle:       r.Title,
			models.FieldAuthor:      r.Author,
			models.FieldNarrator:    r.Narrator,
			models.FieldDescription: r.Description,
			models.FieldDuration:    r.Duration,
			models.FieldLink:        r.URL,
		}
		if r.Series != "" {
			fields[models.FieldSeriesName] = r.Series
			if r.SeriesPosition != nil {
				fields[models.FieldSeriesNumber] = strconv.FormatFloat(*r.SeriesPosition, 'f', -1, 64)
			}
		}

		confidence := 0.55
		if target.Title != "" && titles.Match(target.Title, r.Title) {
			confidence = 0.7
		}

		results = append(results, AcquisitionResult{Fields: fields, Confidence: confidence, Source: a.Name()})
	}
	return results, nil
}
