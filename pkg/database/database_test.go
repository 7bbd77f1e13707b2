package database

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/listenarr/listenarr/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InMemory(t *testing.T) {
	cfg := config.NewForTest()

	db, err := New(cfg)
	require.NoError(t, err)
	defer db.Close()

	var one int
	err = db.QueryRow("SELECT 1").Scan(&one)
	require.NoError(t, err)
	assert.Equal(t, 1, one)
}

// Concurrent writes from multiple goroutines must not surface
// "database is locked" errors; the single shared connection serializes them.
func TestNew_ConcurrentWrites(t *testing.T) {
	cfg := config.NewForTest()
	cfg.DatabaseFilePath = filepath.Join(t.TempDir(), "test.db")

	db, err := New(cfg)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE concurrency_test (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		value TEXT NOT NULL
	)`)
	require.NoError(t, err)

	const numWorkers = 10
	const writesPerWorker = 20

	var wg sync.WaitGroup
	errs := make(chan error, numWorkers*writesPerWorker)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := 0; i < writesPerWorker; i++ {
				_, err := db.Exec(
					"INSERT INTO concurrency_test (value) VALUES (?)",
					fmt.Sprintf("worker-%d-write-%d", workerID, i),
				)
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM concurrency_test").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, numWorkers*writesPerWorker, count)
}
