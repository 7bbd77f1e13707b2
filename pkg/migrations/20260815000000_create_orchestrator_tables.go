package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE work_items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				kind TEXT NOT NULL,
				title TEXT NOT NULL,
				author TEXT NOT NULL DEFAULT '',
				series_name TEXT,
				series_number REAL,
				isbn TEXT,
				asin TEXT,
				biblio_id TEXT,
				target_key TEXT NOT NULL,
				state TEXT NOT NULL DEFAULT 'queued',
				retry_count INTEGER NOT NULL DEFAULT 0,
				max_retries INTEGER NOT NULL DEFAULT 3,
				next_eligible_at TIMESTAMPTZ,
				last_error_kind TEXT,
				last_error_detail TEXT,
				process_id TEXT,
				batch_id TEXT,
				merged TEXT NOT NULL DEFAULT ''
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// Due-work enumeration and dedupe are the hot queries.
		_, err = db.Exec(`CREATE INDEX ix_work_items_state_next_eligible_at ON work_items(state, next_eligible_at)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_work_items_target_key ON work_items(target_key)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_work_items_batch_id ON work_items(batch_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE completion_targets (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				kind TEXT NOT NULL,
				name TEXT NOT NULL,
				external_total INTEGER NOT NULL DEFAULT 0,
				owned_count INTEGER NOT NULL DEFAULT 0,
				gap INTEGER NOT NULL DEFAULT 0,
				last_scanned_at TIMESTAMPTZ,
				UNIQUE (kind, name)
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE failure_records (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				target_key TEXT NOT NULL UNIQUE,
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error_kind TEXT NOT NULL,
				last_error_detail TEXT,
				permanent BOOLEAN NOT NULL DEFAULT FALSE
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE corrections (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				work_item_id INTEGER NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
				field TEXT NOT NULL,
				old_value TEXT,
				new_value TEXT NOT NULL,
				source TEXT NOT NULL
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		// Index for retention cleanup (delete old corrections by created_at)
		_, err = db.Exec(`CREATE INDEX ix_corrections_created_at ON corrections(created_at)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE runs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				trigger_name TEXT NOT NULL,
				started_at TIMESTAMPTZ NOT NULL,
				finished_at TIMESTAMPTZ,
				processed INTEGER NOT NULL DEFAULT 0,
				succeeded INTEGER NOT NULL DEFAULT 0,
				failed INTEGER NOT NULL DEFAULT 0,
				error TEXT
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE books (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				title TEXT NOT NULL,
				author TEXT NOT NULL DEFAULT '',
				series_name TEXT,
				series_number REAL,
				isbn TEXT,
				asin TEXT,
				acquired_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
		`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`CREATE INDEX ix_books_series_name ON books(series_name)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_books_author ON books(author)`)
		if err != nil {
			return errors.WithStack(err)
		}

		return nil
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"books", "runs", "corrections", "failure_records", "completion_targets", "work_items"} {
			_, err := db.Exec(`DROP TABLE IF EXISTS ` + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
