package main

import (
	"context"
	"log"
	"os"

	"goexact/adapters/postgres"
	"goexact/adapters/resultlog"
	"goexact/domain/core"
	"goexact/internal/migration"
	"goexact/models"
	"goexact/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// migrate loads results files written by the RESULTS_FILE appender into the
// barnard_results table, creating the schema first.
func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: migrate <database_url> <results.csv>...")
	}

	databaseURL := os.Args[1]
	ctx := context.Background()

	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	runner := migration.NewRunner()
	if err := runner.Run(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Schema at version %s", runner.Version())

	repo := postgres.NewResultRepository(db)
	for _, path := range os.Args[2:] {
		imported, skipped, err := importFile(ctx, repo, path)
		if err != nil {
			log.Fatalf("Failed to import %s: %v", path, err)
		}
		log.Printf("%s: imported %d rows, skipped %d", path, imported, skipped)
	}
}

// importFile saves the rows of one results file. A row whose run already holds
// a result for the same cell is skipped, so importing a file twice is a no-op.
func importFile(ctx context.Context, repo ports.ResultRepository, path string) (imported, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	rows, err := resultlog.ReadRows(f, path)
	if err != nil {
		return 0, 0, err
	}
	stored := make(map[string]map[cellKey]bool)
	for _, row := range rows {
		res, ok := toResult(row)
		if !ok {
			log.Printf("Skipping row with invalid run id %q", row.RunID)
			skipped++
			continue
		}
		cells, ok := stored[res.RunID]
		if !ok {
			if cells, err = storedCells(ctx, repo, res.RunID); err != nil {
				return imported, skipped, err
			}
			stored[res.RunID] = cells
		}
		key := keyOf(res)
		if cells[key] {
			skipped++
			continue
		}
		if err := repo.SaveBarnardResult(ctx, res); err != nil {
			return imported, skipped, err
		}
		cells[key] = true
		imported++
	}
	return imported, skipped, nil
}

type cellKey struct {
	n, n1, x, a int
}

func keyOf(r *models.BarnardResult) cellKey {
	return cellKey{n: r.N, n1: r.N1, x: r.X, a: r.A}
}

func storedCells(ctx context.Context, repo ports.ResultRepository, runID string) (map[cellKey]bool, error) {
	existing, err := repo.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	cells := make(map[cellKey]bool, len(existing))
	for _, r := range existing {
		cells[keyOf(r)] = true
	}
	return cells, nil
}

func toResult(row resultlog.Row) (*models.BarnardResult, bool) {
	runID, err := core.ParseRunID(row.RunID)
	if err != nil {
		return nil, false
	}
	return &models.BarnardResult{
		RunID:      runID.String(),
		N:          row.N,
		N1:         row.N1,
		X:          row.X,
		A:          row.A,
		PValue:     row.PValue,
		Pi:         row.Pi,
		Evaluated:  row.Evaluated,
		Failed:     row.Failed,
		GridPoints: models.PointList{},
	}, true
}
