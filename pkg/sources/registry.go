package sources

import (
	"net/http"

	"github.com/listenarr/listenarr/pkg/config"
)

// FromConfig builds the three production adapters, wraps each in its rate
// limit and timeout, and returns the kind-specific chain set.
func FromConfig(cfg *config.Config) *ChainSet {
	client := &http.Client{}

	wrap := func(a Adapter) Adapter {
		return NewLimited(a, cfg.AdapterRatePerMinute, cfg.AdapterTimeout)
	}

	torrent := wrap(NewTorrentTracker(cfg.TorrentTrackerBaseURL, cfg.TorrentTrackerAPIKey, client))
	biblio := wrap(NewBiblioAPI(cfg.BiblioAPIBaseURL, cfg.BiblioAPIKey, client))
	scraper := wrap(NewCommunityScraper(cfg.CommunityScraperBaseURL, client))

	return NewChainSet(torrent, biblio, scraper)
}
