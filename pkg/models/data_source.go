package models

const (
	SourceManual           = "manual"
	SourceTorrentTracker   = "torrent_tracker"
	SourceBiblioAPI        = "biblio_api"
	SourceCommunityScraper = "community_scraper"
)

// Lower priority means that we respect it more than higher priority.
const (
	SourceManualPriority = iota
	SourceBiblioAPIPriority
	SourceCommunityScraperPriority
	SourceTorrentTrackerPriority
)

var SourcePriority = map[string]int{
	SourceManual:           SourceManualPriority,
	SourceBiblioAPI:        SourceBiblioAPIPriority,
	SourceCommunityScraper: SourceCommunityScraperPriority,
	SourceTorrentTracker:   SourceTorrentTrackerPriority,
}

// PinnedFieldSource maps fields to the single source trusted for them. Once
// the pinned source has written a pinned field, no other source may overwrite
// it regardless of confidence, and the pinned source may always reclaim it; a
// torrent filename guess never overrides a bibliographic series position.
var PinnedFieldSource = map[string]string{
	FieldSeriesName:   SourceBiblioAPI,
	FieldSeriesNumber: SourceBiblioAPI,
}
