// Package library is the orchestrator's mirror of the locally-owned
// audiobook collection. The real import pipeline lives elsewhere; this
// service answers ownership queries for the completeness scanner and
// records acquisitions as they complete.
package library

import (
	"context"
	"time"

	"github.com/listenarr/listenarr/pkg/models"
	"github.com/listenarr/listenarr/pkg/titles"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type ListBooksOptions struct {
	Limit         *int
	Author        *string
	SeriesName    *string
	AcquiredAfter *time.Time
	OrderByRecent bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateBook(ctx context.Context, book *models.Book) error {
	now := time.Now()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = book.CreatedAt
	if book.AcquiredAt.IsZero() {
		book.AcquiredAt = now
	}

	_, err := svc.db.
		NewInsert().
		Model(book).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	books := []*models.Book{}

	q := svc.db.
		NewSelect().
		Model(&books)

	if opts.OrderByRecent {
		q = q.Order("b.acquired_at DESC")
	} else {
		q = q.Order("b.series_number ASC", "b.title ASC")
	}

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Author != nil {
		q = q.Where("b.author = ?", *opts.Author)
	}
	if opts.SeriesName != nil {
		q = q.Where("b.series_name = ?", *opts.SeriesName)
	}
	if opts.AcquiredAfter != nil {
		q = q.Where("b.acquired_at >= ?", *opts.AcquiredAfter)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return books, nil
}

// Owns reports whether a book matching the title (and position, when both
// sides have one) is already in the library slice.
func Owns(books []*models.Book, title string, seriesNumber *float64) bool {
	for _, book := range books {
		if seriesNumber != nil && book.SeriesNumber != nil {
			if *book.SeriesNumber == *seriesNumber {
				return true
			}
			continue
		}
		if titles.Match(book.Title, title) {
			return true
		}
	}
	return false
}

// ImportAcquired records a successfully acquired work item as an owned
// book. Wired to the book_acquired event at daemon startup.
func (svc *Service) ImportAcquired(ctx context.Context, item *models.WorkItem) error {
	merged := item.MergedParsed

	book := &models.Book{
		Title:        item.Title,
		Author:       item.Author,
		SeriesName:   item.SeriesName,
		SeriesNumber: item.SeriesNumber,
		ISBN:         item.ISBN,
		ASIN:         item.ASIN,
	}

	if fv, ok := merged.Get(models.FieldTitle); ok {
		book.Title = fv.Value
	}
	if fv, ok := merged.Get(models.FieldAuthor); ok {
		book.Author = fv.Value
	}
	if book.SeriesName == nil {
		if fv, ok := merged.Get(models.FieldSeriesName); ok {
			book.SeriesName = &fv.Value
		}
	}
	if book.ISBN == nil {
		if fv, ok := merged.Get(models.FieldISBN); ok {
			book.ISBN = &fv.Value
		}
	}

	return svc.CreateBook(ctx, book)
}
