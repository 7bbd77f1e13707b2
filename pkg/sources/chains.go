package sources

import "github.com/listenarr/listenarr/pkg/models"

// ChainSet holds the kind-specific adapter orderings. Downloads want the
// tracker first; anything metadata-led starts with the bibliographic API and
// only falls back to the tracker as a locator hint of last resort.
type ChainSet struct {
	chains map[string][]Adapter
	all    []Adapter
}

func NewChainSet(torrent, biblio, scraper Adapter) *ChainSet {
	return &ChainSet{
		chains: map[string][]Adapter{
			models.WorkItemKindDownload:        {torrent, biblio, scraper},
			models.WorkItemKindMetadataRefresh: {biblio, scraper},
			models.WorkItemKindDiscover:        {biblio, scraper, torrent},
			models.WorkItemKindSeriesGapFill:   {biblio, scraper, torrent},
			models.WorkItemKindAuthorGapFill:   {biblio, scraper, torrent},
		},
		all: []Adapter{torrent, biblio, scraper},
	}
}

// For returns the adapter ordering for a work item kind.
func (cs *ChainSet) For(kind string) []Adapter {
	return cs.chains[kind]
}

// All returns every adapter, for scans that union across sources.
func (cs *ChainSet) All() []Adapter {
	return cs.all
}

// Biblio returns the bibliographic adapter, the authoritative source for
// ordered series listings.
func (cs *ChainSet) Biblio() Adapter {
	for _, a := range cs.all {
		if a.Name() == models.SourceBiblioAPI {
			return a
		}
	}
	return nil
}
