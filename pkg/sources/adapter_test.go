package sources

import (
	"testing"

	"github.com/listenarr/listenarr/pkg/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, models.ErrorKindTransient, KindOf(Transient(nil, "rate limited")))
	assert.Equal(t, models.ErrorKindNotFound, KindOf(NotFound("no match")))
	assert.Equal(t, models.ErrorKindPermanent, KindOf(Permanent(nil, "bad auth")))

	// An unclassified error is a programming error, which is permanent.
	assert.Equal(t, models.ErrorKindPermanent, KindOf(errors.New("oops")))
}

func TestKindOf_Wrapped(t *testing.T) {
	err := errors.Wrap(Transient(nil, "rate limited"), "calling tracker")
	assert.Equal(t, models.ErrorKindTransient, KindOf(err))
	assert.Equal(t, "rate limited", DetailOf(err))
}

func TestSplitSeriesGuess(t *testing.T) {
	name, number, ok := splitSeriesGuess("Stormlight Archive #2")
	assert.True(t, ok)
	assert.Equal(t, "Stormlight Archive", name)
	assert.Equal(t, "2", number)

	name, number, ok = splitSeriesGuess("Standalone Series")
	assert.True(t, ok)
	assert.Equal(t, "Standalone Series", name)
	assert.Empty(t, number)

	_, _, ok = splitSeriesGuess("  ")
	assert.False(t, ok)
}

func TestAcquisitionResult_SeriesNumber(t *testing.T) {
	r := AcquisitionResult{Fields: map[string]string{models.FieldSeriesNumber: "2.5"}}
	n, ok := r.SeriesNumber()
	assert.True(t, ok)
	assert.Equal(t, 2.5, n)

	r = AcquisitionResult{Fields: map[string]string{models.FieldSeriesNumber: "two"}}
	_, ok = r.SeriesNumber()
	assert.False(t, ok)

	r = AcquisitionResult{Fields: map[string]string{}}
	_, ok = r.SeriesNumber()
	assert.False(t, ok)
}

func TestChainSet_Orderings(t *testing.T) {
	torrent := NewTorrentTracker("https://tracker.example", "key", nil)
	biblio := NewBiblioAPI("https://books.example", "", nil)
	scraper := NewCommunityScraper("https://scraper.example", nil)

	cs := NewChainSet(torrent, biblio, scraper)

	download := cs.For(models.WorkItemKindDownload)
	assert.Equal(t, models.SourceTorrentTracker, download[0].Name())

	refresh := cs.For(models.WorkItemKindMetadataRefresh)
	assert.Equal(t, models.SourceBiblioAPI, refresh[0].Name())
	assert.Len(t, refresh, 2)

	assert.Len(t, cs.All(), 3)
	assert.Equal(t, models.SourceBiblioAPI, cs.Biblio().Name())
}
