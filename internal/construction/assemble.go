// Assembly of per-table databases into the final snapshot. Tables are
// copied with ATTACH + INSERT ... SELECT; indices are not copied, so they
// are created on the combined database once all copies are done.
package construction

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/indralab/dblite/internal/database"
	apperrors "github.com/indralab/dblite/internal/errors"
	"github.com/indralab/dblite/internal/logger"
)

// Sources names the per-table databases an assembly reads from. The mesh
// database contributes both mesh tables.
type Sources struct {
	AgentTextsPath   string
	BestContentPath  string
	EntitiesPath     string
	PMIDTextRefsPath string
	MeshPath         string
}

// hasTable reports whether the database at path contains the table.
func hasTable(db *gorm.DB, table string) (bool, error) {
	tables, err := database.Tables(db)
	if err != nil {
		return false, err
	}
	for _, name := range tables {
		if name == table {
			return true, nil
		}
	}
	return false, nil
}

// MoveTable copies a table from the database at fromPath into db. The table
// must already exist on both sides; indices are not copied.
func MoveTable(db *gorm.DB, fromPath string, table string) error {
	if _, ok := tableDDL[table]; !ok {
		return apperrors.New(apperrors.ErrInvalidParams, "unknown snapshot table: "+table)
	}
	if ok, err := hasTable(db, table); err != nil {
		return err
	} else if !ok {
		return apperrors.New(apperrors.ErrDatabaseAssemble,
			fmt.Sprintf("table %s missing from target database", table))
	}

	// Opening a nonexistent path would create an empty database file;
	// require the source to exist first.
	if _, err := os.Stat(fromPath); err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseAssemble, err,
			"source database not found at %s", fromPath)
	}

	from, err := database.Open(fromPath)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabaseAssemble, "failed to open source database", err)
	}
	if ok, err := hasTable(from, table); err != nil {
		return err
	} else if !ok {
		return apperrors.New(apperrors.ErrDatabaseAssemble,
			fmt.Sprintf("table %s missing from %s", table, fromPath))
	}
	if sqlDB, err := from.DB(); err == nil {
		sqlDB.Close()
	}

	if err := db.Exec("ATTACH ? AS from_db", fromPath).Error; err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseAssemble, err, "failed to attach %s", fromPath)
	}
	copyErr := db.Exec(fmt.Sprintf(
		"INSERT INTO %s SELECT * FROM from_db.%s", table, table,
	)).Error
	if detachErr := db.Exec("DETACH from_db").Error; detachErr != nil && copyErr == nil {
		copyErr = detachErr
	}
	if copyErr != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseAssemble, copyErr, "failed to copy table %s", table)
	}

	logger.WithField("table", table).Infof("copied table from %s", filepath.Base(fromPath))
	return nil
}

// ConstructLocalDatabase assembles the per-table databases into a single
// snapshot at outPath and adds all indices.
func ConstructLocalDatabase(outPath string, sources Sources) error {
	db, err := database.Open(outPath)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabaseConnection, "failed to open snapshot database", err)
	}

	for _, table := range SnapshotTables {
		if err := EnsureTable(db, table); err != nil {
			return err
		}
	}

	copies := []struct {
		fromPath string
		table    string
	}{
		{sources.AgentTextsPath, "agent_texts"},
		{sources.BestContentPath, "best_content"},
		{sources.EntitiesPath, "entrez_pmids"},
		{sources.PMIDTextRefsPath, "pmid_text_refs"},
		{sources.MeshPath, "mesh_pmids"},
		{sources.MeshPath, "mesh_xrefs"},
	}
	for _, c := range copies {
		if err := MoveTable(db, c.fromPath, c.table); err != nil {
			return err
		}
	}

	if err := AddAllIndices(db); err != nil {
		return err
	}

	logger.Infof("assembled snapshot database at %s", outPath)
	return nil
}
