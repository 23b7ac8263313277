package store

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/exportprofiles/internal/models"
)

// ProfileStore owns export profiles and their child rows. Every operation is
// scoped by an explicit owner; profiles of other users or courses read as
// empty and are never written.
type ProfileStore interface {
	Close() error
	ApplyMigrations(fsys fs.FS) error

	GetProfiles(ctx context.Context, owner models.Owner) ([]models.Profile, error)
	GetLastProfileID(ctx context.Context, owner models.Owner) (int64, bool, error)
	GetProfileIDByName(ctx context.Context, owner models.Owner, name string) (int64, bool, error)
	GetProfileName(ctx context.Context, owner models.Owner, profileID int64) (string, Access, error)
	GetItemStates(ctx context.Context, owner models.Owner, profileID int64) (map[int64]int, Access, error)
	GetOptions(ctx context.Context, owner models.Owner, profileID int64) (map[string]string, Access, error)

	SetLast(ctx context.Context, owner models.Owner, profileID int64) (Access, error)
	SaveProfile(ctx context.Context, owner models.Owner, req SaveRequest) (int64, error)
	DeleteProfile(ctx context.Context, owner models.Owner, profileID int64) (Access, error)
	DeleteAllForCourse(ctx context.Context, courseID int64) (int64, error)
}

// Catalogue is the read side of the gradebook the profiles refer to.
type Catalogue interface {
	GetCourse(ctx context.Context, courseID int64) (*models.Course, error)
	ListGradeItems(ctx context.Context, courseID int64) ([]models.GradeItem, error)
	ListGradeRows(ctx context.Context, courseID, groupID int64, onlyActive bool) ([]models.GradeRow, error)
	IsGroupMember(ctx context.Context, courseID, groupID, userID int64) (bool, error)
}

type Store interface {
	ProfileStore
	Catalogue
}

// BaseStore provides common functionality for different DB implementations
type BaseStore struct {
	DB        *sqlx.DB
	Converter func(string) string
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// ApplyMigrations applies the *.sql files of fsys in name order, translating
// dialect if needed
func (s *BaseStore) ApplyMigrations(fsys fs.FS, translateSQL func(string) string) error {
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(fsys, file.Name())
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file.Name(), err)
		}

		sql := string(content)
		if translateSQL != nil {
			sql = translateSQL(sql)
		}

		logger.Info.Printf("Applying migration: %s", file.Name())
		if _, err := s.DB.Exec(sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file.Name(), err)
		}
	}

	return nil
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

func (s *BaseStore) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error.Printf("Failed to roll back transaction: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
