// Table definitions for the snapshot database. Tables are created without
// indices; AddAllIndices runs after the bulk copies so inserts stay cheap.
package construction

import (
	"gorm.io/gorm"

	apperrors "github.com/indralab/dblite/internal/errors"
)

var tableDDL = map[string]string{
	"agent_texts": `CREATE TABLE IF NOT EXISTS agent_texts (
		id INTEGER PRIMARY KEY,
		agent_text TEXT,
		text_ref_id INTEGER
	)`,
	"best_content": `CREATE TABLE IF NOT EXISTS best_content (
		id INTEGER PRIMARY KEY,
		text_ref_id INTEGER,
		text_content_id1 INTEGER,
		text_content_id2 INTEGER,
		text_type TEXT,
		content TEXT,
		UNIQUE(text_content_id1),
		UNIQUE(text_ref_id)
	)`,
	"entrez_pmids": `CREATE TABLE IF NOT EXISTS entrez_pmids (
		id INTEGER PRIMARY KEY,
		taxon_id INTEGER,
		entrez_id INTEGER,
		uniprot_id TEXT,
		hgnc_id INTEGER,
		pmid INTEGER
	)`,
	"pmid_text_refs": `CREATE TABLE IF NOT EXISTS pmid_text_refs (
		text_ref_id INTEGER PRIMARY KEY,
		pmid INTEGER
	)`,
	"mesh_pmids": `CREATE TABLE IF NOT EXISTS mesh_pmids (
		mesh_num INTEGER,
		is_concept INTEGER,
		major_topic INTEGER,
		pmid_num INTEGER
	)`,
	"mesh_xrefs": `CREATE TABLE IF NOT EXISTS mesh_xrefs (
		id INTEGER PRIMARY KEY,
		mesh_num INTEGER,
		is_concept INTEGER,
		curie TEXT
	)`,
}

var tableIndices = map[string][]string{
	"agent_texts": {
		"CREATE INDEX IF NOT EXISTS agent_texts_agent_text_idx ON agent_texts(agent_text)",
	},
	"best_content": {
		"CREATE INDEX IF NOT EXISTS best_content_text_ref_id_idx ON best_content(text_ref_id)",
		"CREATE INDEX IF NOT EXISTS best_content_text_type_id_idx ON best_content(text_type)",
	},
	"entrez_pmids": {
		"CREATE INDEX IF NOT EXISTS entrez_pmids_entrez_id_idx ON entrez_pmids(entrez_id)",
		"CREATE INDEX IF NOT EXISTS entrez_pmids_uniprot_id_idx ON entrez_pmids(uniprot_id)",
		"CREATE INDEX IF NOT EXISTS entrez_pmids_hgnc_id_idx ON entrez_pmids(hgnc_id)",
	},
	"pmid_text_refs": {
		"CREATE INDEX IF NOT EXISTS pmid_text_refs_pmid_idx ON pmid_text_refs(pmid)",
	},
	"mesh_pmids": {
		"CREATE INDEX IF NOT EXISTS mesh_pmids_mesh_num_is_concept_idx ON mesh_pmids(mesh_num, is_concept)",
	},
	"mesh_xrefs": {
		"CREATE INDEX IF NOT EXISTS mesh_xrefs_curie_idx ON mesh_xrefs(curie)",
		"CREATE INDEX IF NOT EXISTS mesh_xrefs_mesh_num_is_concept_idx ON mesh_xrefs(mesh_num, is_concept)",
	},
}

// SnapshotTables lists the tables of the assembled snapshot.
var SnapshotTables = []string{
	"agent_texts",
	"best_content",
	"entrez_pmids",
	"pmid_text_refs",
	"mesh_pmids",
	"mesh_xrefs",
}

// EnsureTable creates the named snapshot table if it does not exist.
func EnsureTable(db *gorm.DB, table string) error {
	ddl, ok := tableDDL[table]
	if !ok {
		return apperrors.New(apperrors.ErrInvalidParams, "unknown snapshot table: "+table)
	}
	if err := db.Exec(ddl).Error; err != nil {
		return apperrors.Wrapf(apperrors.ErrDatabaseAssemble, err, "failed to create table %s", table)
	}
	return nil
}

// AddIndices creates the indices of the named snapshot table.
func AddIndices(db *gorm.DB, table string) error {
	stmts, ok := tableIndices[table]
	if !ok {
		return apperrors.New(apperrors.ErrInvalidParams, "unknown snapshot table: "+table)
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return apperrors.Wrapf(apperrors.ErrDatabaseAssemble, err, "failed to index table %s", table)
		}
	}
	return nil
}

// AddAllIndices indexes every snapshot table.
func AddAllIndices(db *gorm.DB) error {
	for _, table := range SnapshotTables {
		if err := AddIndices(db, table); err != nil {
			return err
		}
	}
	return nil
}
