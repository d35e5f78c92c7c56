package reliability

import (
	"fmt"
	"time"

	"github.com/aristath/backtester/internal/database"
	"github.com/rs/zerolog"
)

// MaintenanceJob performs periodic database maintenance: integrity checks,
// WAL checkpoints and space reclamation.
type MaintenanceJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(databases map[string]*database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

func (j *MaintenanceJob) Name() string { return "db_maintenance" }

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting database maintenance")
	startTime := time.Now()

	for name, db := range j.databases {
		var result string
		if err := db.Conn().QueryRow(`PRAGMA integrity_check`).Scan(&result); err != nil {
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
		if result != "ok" {
			return fmt.Errorf("database %s failed integrity check: %s", name, result)
		}

		if _, err := db.Conn().Exec(`PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}

		if _, err := db.Conn().Exec(`PRAGMA incremental_vacuum`); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("Incremental vacuum failed")
		}

		j.log.Debug().Str("database", name).Msg("Database maintenance completed")
	}

	j.log.Info().
		Dur("duration", time.Since(startTime)).
		Int("databases", len(j.databases)).
		Msg("Database maintenance completed")
	return nil
}
