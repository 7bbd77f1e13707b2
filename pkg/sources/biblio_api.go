package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/listenarr/listenarr/pkg/models"
	"github.com/listenarr/listenarr/pkg/titles"
)

// BiblioAPI searches a Google-Books-style volumes endpoint. It is the
// authoritative source for series names and positions, and its canonical
// volume link doubles as a locator hint for download chains.
type BiblioAPI struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewBiblioAPI(baseURL, apiKey string, client *http.Client) *BiblioAPI {
	if client == nil {
		client = http.DefaultClient
	}
	return &BiblioAPI{BaseURL: baseURL, APIKey: apiKey, Client: client}
}

func (a *BiblioAPI) Name() string {
	return models.SourceBiblioAPI
}

type biblioVolume struct {
	ID         string `json:"id"`
	VolumeInfo struct {
		Title               string   `json:"title"`
		Subtitle            string   `json:"subtitle"`
		Authors             []string `json:"authors"`
		Description         string   `json:"description"`
		Language            string   `json:"language"`
		CanonicalVolumeLink string   `json:"canonicalVolumeLink"`
		IndustryIdentifiers []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"industryIdentifiers"`
		SeriesInfo struct {
			Series       string `json:"series"`
			VolumeNumber string `json:"volumeNumber"`
		} `json:"seriesInfo"`
	} `json:"volumeInfo"`
}

type biblioResponse struct {
	TotalItems int            `json:"totalItems"`
	Items      []biblioVolume `json:"items"`
}

func (a *BiblioAPI) Find(ctx context.Context, target TargetDescriptor) ([]AcquisitionResult, error) {
	query := a.buildQuery(target)
	if query == "" {
		return nil, Permanent(nil, "empty target descriptor")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", "20")
	if a.APIKey != "" {
		params.Set("key", a.APIKey)
	}

	var resp biblioResponse
	err := getJSON(ctx, a.Client, a.BaseURL+"/volumes?"+params.Encode(), nil, &resp)
	if err != nil {
		return nil, err
	}
	if resp.TotalItems == 0 || len(resp.Items) == 0 {
		return nil, NotFound("no volumes matched")
	}

	results := make([]AcquisitionResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, a.toResult(target, item))
	}
	return results, nil
}

func (a *BiblioAPI) buildQuery(target TargetDescriptor) string {
	switch {
	case target.ISBN != "":
		return "isbn:" + target.ISBN
	case target.BiblioID != "":
		return "id:" + target.BiblioID
	}

	var parts []string
	if target.Title != "" {
		parts = append(parts, fmt.Sprintf("intitle:%q", target.Title))
	}
	if target.Author != "" {
		parts = append(parts, fmt.Sprintf("inauthor:%q", target.Author))
	}
	if target.SeriesName != "" && target.Title == "" {
		// Series listing query; results come back as the ordered set of
		// volumes in the series.
		parts = append(parts, fmt.Sprintf("insubject:%q", target.SeriesName))
	}
	return strings.Join(parts, " ")
}

func (a *BiblioAPI) toResult(target TargetDescriptor, item biblioVolume) AcquisitionResult {
	info := item.VolumeInfo
	fields := map[string]string{
		models.FieldTitle:       info.Title,
		models.FieldSubtitle:    info.Subtitle,
		models.FieldDescription: info.Description,
		models.FieldLanguage:    info.Language,
		models.FieldLink:        info.CanonicalVolumeLink,
	}
	if len(info.Authors) > 0 {
		fields[models.FieldAuthor] = strings.Join(info.Authors, ", ")
	}
	for _, id := range info.IndustryIdentifiers {
		switch id.Type {
		case "ISBN_13", "ISBN_10":
			if fields[models.FieldISBN] == "" {
				fields[models.FieldISBN] = id.Identifier
			}
		}
	}
	if info.SeriesInfo.Series != "" {
		fields[models.FieldSeriesName] = info.SeriesInfo.Series
		fields[models.FieldSeriesNumber] = info.SeriesInfo.VolumeNumber
	}

	confidence := 0.6
	switch {
	case target.ISBN != "" || target.BiblioID != "":
		confidence = 0.95
	case target.Title != "" && titles.Match(target.Title, info.Title):
		confidence = 0.85
	case target.SeriesName != "" && target.Title == "":
		confidence = 0.8
	}

	return AcquisitionResult{Fields: fields, Confidence: confidence, Source: a.Name()}
}
