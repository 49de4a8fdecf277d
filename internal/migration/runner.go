package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/docsense/backend/internal/database"
)

// appliedMigration records one SQL file that already ran
type appliedMigration struct {
	Name      string `gorm:"primaryKey"`
	AppliedAt time.Time
}

func (appliedMigration) TableName() string { return "schema_migrations" }

type Runner struct {
	dbManager *database.Manager
	logger    *logrus.Logger
}

func NewRunner(dbManager *database.Manager, logger *logrus.Logger) *Runner {
	return &Runner{
		dbManager: dbManager,
		logger:    logger,
	}
}

// RunMigrations brings the schema up to date: GORM auto-migration for
// the model tables, then any SQL files not yet recorded in
// schema_migrations, in lexical order.
func (r *Runner) RunMigrations(migrationsPath string) error {
	r.logger.Info("Starting database migrations...")

	if err := r.dbManager.Migrate(); err != nil {
		return fmt.Errorf("GORM auto-migration failed: %w", err)
	}

	if err := r.dbManager.DB.AutoMigrate(&appliedMigration{}); err != nil {
		return fmt.Errorf("migration tracking table setup failed: %w", err)
	}

	if err := r.runSQLMigrations(migrationsPath); err != nil {
		return fmt.Errorf("SQL migrations failed: %w", err)
	}

	r.logger.Info("Database migrations completed successfully")
	return nil
}

func (r *Runner) runSQLMigrations(migrationsPath string) error {
	files, err := os.ReadDir(migrationsPath)
	if err != nil {
		if os.IsNotExist(err) {
			r.logger.WithField("path", migrationsPath).Debug("No migrations directory, skipping SQL migrations")
			return nil
		}
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, fileName := range sqlFiles {
		applied, err := r.alreadyApplied(fileName)
		if err != nil {
			return err
		}
		if applied {
			r.logger.WithField("file", fileName).Debug("Migration already applied, skipping")
			continue
		}

		if err := r.applySQLFile(migrationsPath, fileName); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", fileName, err)
		}
		r.logger.WithField("file", fileName).Info("Migration executed successfully")
	}

	return nil
}

func (r *Runner) alreadyApplied(fileName string) (bool, error) {
	var count int64
	err := r.dbManager.DB.Model(&appliedMigration{}).
		Where("name = ?", fileName).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check migration state: %w", err)
	}
	return count > 0, nil
}

// applySQLFile runs every statement of one file and records it in the
// same transaction, so a partial failure leaves the file unapplied.
func (r *Runner) applySQLFile(migrationsPath, fileName string) error {
	content, err := os.ReadFile(filepath.Join(migrationsPath, fileName))
	if err != nil {
		return err
	}

	return r.dbManager.DB.Transaction(func(tx *gorm.DB) error {
		for i, stmt := range splitSQLStatements(string(content)) {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("statement %d failed: %w", i+1, err)
			}
		}
		return tx.Create(&appliedMigration{Name: fileName, AppliedAt: time.Now()}).Error
	})
}

// splitSQLStatements strips comment lines and splits on semicolons
func splitSQLStatements(sql string) []string {
	var cleanedLines []string
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			cleanedLines = append(cleanedLines, line)
		}
	}

	var result []string
	for _, stmt := range strings.Split(strings.Join(cleanedLines, " "), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			result = append(result, stmt)
		}
	}

	return result
}
