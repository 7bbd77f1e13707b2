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

// TorrentTracker searches a private audiobook tracker. Its strength is the
// acquisition link; its metadata is parsed out of release titles, so
// everything except the link carries low confidence.
type TorrentTracker struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewTorrentTracker(baseURL, apiKey string, client *http.Client) *TorrentTracker {
	if client == nil {
		client = http.DefaultClient
	}
	return &TorrentTracker{BaseURL: baseURL, APIKey: apiKey, Client: client}
}

func (a *TorrentTracker) Name() string {
	return models.SourceTorrentTracker
}

type trackerTorrent struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	AuthorInfo string `json:"author_info"`
	SeriesInfo string `json:"series_info"`
	Narrator   string `json:"narrator"`
	Language   string `json:"lang"`
}

type trackerResponse struct {
	Data []trackerTorrent `json:"data"`
}

func (a *TorrentTracker) Find(ctx context.Context, target TargetDescriptor) ([]AcquisitionResult, error) {
	if a.APIKey == "" {
		return nil, Permanent(nil, "tracker API key not configured")
	}

	text := strings.TrimSpace(target.Title + " " + target.Author)
	if text == "" {
		return nil, Permanent(nil, "empty target descriptor")
	}

	params := url.Values{}
	params.Set("tor[text]", text)
	params.Set("tor[main_cat]", "13") // audiobooks

	var resp trackerResponse
	headers := map[string]string{"Authorization": "Bearer " + a.APIKey}
	err := getJSON(ctx, a.Client, a.BaseURL+"/tor/js/loadSearchJSONbasic.php?"+params.Encode(), headers, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, NotFound("no torrents matched")
	}

	results := make([]AcquisitionResult, 0, len(resp.Data))
	for _, tor := range resp.Data {
		results = append(results, a.toResult(target, tor))
	}
	return results, nil
}

func (a *TorrentTracker) toResult(target TargetDescriptor, tor trackerTorrent) AcquisitionResult {
	fields := map[string]string{
		models.FieldTitle:    tor.Title,
		models.FieldAuthor:   tor.AuthorInfo,
		models.FieldNarrator: tor.Narrator,
		models.FieldLanguage: tor.Language,
		models.FieldLink:     fmt.Sprintf("%s/tor/download.php/%d", a.BaseURL, tor.ID),
	}

	// Series info here is a filename guess like "Stormlight Archive #2";
	// keep it, but the merge engine pins series fields to the biblio source.
	if name, number, ok := splitSeriesGuess(tor.SeriesInfo); ok {
		fields[models.FieldSeriesName] = name
		fields[models.FieldSeriesNumber] = number
	}

	confidence := 0.5
	if target.Title != "" && titles.Match(target.Title, tor.Title) {
		confidence = 0.9
	}

	return AcquisitionResult{Fields: fields, Confidence: confidence, Source: a.Name()}
}

func splitSeriesGuess(info string) (name, number string, ok bool) {
	info = strings.TrimSpace(info)
	if info == "" {
		return "", "", false
	}
	if i := strings.LastIndex(info, "#"); i > 0 {
		return strings.TrimSpace(info[:i]), strings.TrimSpace(info[i+1:]), true
	}
	return info, "", true
}
