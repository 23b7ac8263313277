package app

import (
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/exportprofiles/internal/store"
	"github.com/shrimpsizemoose/exportprofiles/internal/store/postgres"
	"github.com/shrimpsizemoose/exportprofiles/internal/store/sqlite"
)

func NewStore(dsn string) (store.Store, error) {
	dbType := store.DBTypeSQLite
	if strings.HasPrefix(dsn, "postgres") {
		dbType = store.DBTypePostgres
	}

	switch dbType {
	case store.DBTypePostgres:
		s, err := postgres.NewPostgresStore(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case store.DBTypeSQLite:
		s, err := sqlite.NewSQLiteStore(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unable to determine database type from DSN: %s", dsn)
	}
}
