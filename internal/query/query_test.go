package query

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/indralab/dblite/internal/construction"
	"github.com/indralab/dblite/internal/content"
	"github.com/indralab/dblite/internal/database"
)

// encodeParagraphs stores paragraphs the way the snapshot does: a JSON
// array, zlib-compressed when compress is set.
func encodeParagraphs(t *testing.T, paragraphs []string, compress bool) []byte {
	t.Helper()
	data, err := json.Marshal(paragraphs)
	require.NoError(t, err)
	if !compress {
		return data
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func int64Ptr(v int64) *int64 {
	return &v
}

// setupSnapshotDB builds a small snapshot database with every table
// populated.
func setupSnapshotDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indra_lite.db")
	db, err := database.Open(path)
	require.NoError(t, err)

	for _, table := range construction.SnapshotTables {
		require.NoError(t, construction.EnsureTable(db, table))
	}
	require.NoError(t, construction.AddAllIndices(db))

	fixtures := []interface{}{
		&database.BestContent{
			ID: 1, TextRefID: 101, TextContentID1: 11, TextType: content.TypeFulltext,
			Content: encodeParagraphs(t, []string{"INSR fulltext paragraph.", "Another paragraph."}, true),
		},
		&database.BestContent{
			ID: 2, TextRefID: 102, TextContentID1: 12, TextType: content.TypeAbstract,
			Content: encodeParagraphs(t, []string{"Abstract mentioning EGFR."}, false),
		},
		&database.BestContent{
			ID: 3, TextRefID: 103, TextContentID1: 13, TextType: content.TypeTitle,
			Content: encodeParagraphs(t, []string{"Title about INSR"}, false),
		},
		&database.PMIDTextRef{TextRefID: 101, PMID: int64Ptr(9001)},
		&database.PMIDTextRef{TextRefID: 102, PMID: int64Ptr(9002)},
		&database.PMIDTextRef{TextRefID: 103, PMID: nil},
		&database.AgentText{ID: 1, AgentText: "INSR", TextRefID: 101},
		&database.AgentText{ID: 2, AgentText: "INSR", TextRefID: 103},
		&database.AgentText{ID: 3, AgentText: "EGFR", TextRefID: 102},
		&database.EntrezPMID{ID: 1, TaxonID: 9606, EntrezID: 3643, UniprotID: "P06213", HGNCID: 6091, PMID: 9001},
		&database.EntrezPMID{ID: 2, TaxonID: 9606, EntrezID: 3643, UniprotID: "P06213", HGNCID: 6091, PMID: 9002},
		&database.MeshPMID{MeshNum: 18599, IsConcept: 0, MajorTopic: 1, PMIDNum: 9001},
		&database.MeshPMID{MeshNum: 18599, IsConcept: 0, MajorTopic: 0, PMIDNum: 9002},
		&database.MeshXref{ID: 1, MeshNum: 18599, IsConcept: 0, Curie: "EFO:0000001"},
	}
	for _, fixture := range fixtures {
		require.NoError(t, db.Create(fixture).Error)
	}
	return db
}

func TestParagraphsForTextRefIDs(t *testing.T) {
	db := setupSnapshotDB(t)

	tc, err := ParagraphsForTextRefIDs(db, []int64{101, 102, 103, 999})
	require.NoError(t, err)

	assert.Equal(t, 3, tc.Len())
	// Compressed and uncompressed entries decode the same way.
	assert.Equal(t, []string{"INSR fulltext paragraph.", "Another paragraph."}, tc.Fulltexts[101])
	assert.Equal(t, []string{"Abstract mentioning EGFR."}, tc.Abstracts[102])
	assert.Equal(t, []string{"Title about INSR"}, tc.Titles[103])
}

func TestPlaintextsForTextRefIDs(t *testing.T) {
	db := setupSnapshotDB(t)

	plaintexts, err := PlaintextsForTextRefIDs(db, []int64{101, 102, 103}, []string{"INSR"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "INSR fulltext paragraph.\n", plaintexts.Fulltexts[101])
	assert.Empty(t, plaintexts.Abstracts)
	assert.Equal(t, "Title about INSR\n", plaintexts.Titles[103])
}

func TestTextRefIDMappings(t *testing.T) {
	db := setupSnapshotDB(t)

	t.Run("pmids to text refs", func(t *testing.T) {
		mapping, err := TextRefIDsForPMIDs(db, []int64{9001, 9002, 424242})
		require.NoError(t, err)
		assert.Equal(t, map[int64]int64{9001: 101, 9002: 102}, mapping)
	})

	t.Run("text refs to pmids skips null pmids", func(t *testing.T) {
		mapping, err := PMIDsForTextRefIDs(db, []int64{101, 102, 103})
		require.NoError(t, err)
		assert.Equal(t, map[int64]int64{101: 9001, 102: 9002}, mapping)
	})

	t.Run("agent text", func(t *testing.T) {
		ids, err := TextRefIDsForAgentText(db, "INSR")
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{101, 103}, ids)
	})
}

func TestEntrezQueries(t *testing.T) {
	db := setupSnapshotDB(t)

	t.Run("by entrez id", func(t *testing.T) {
		pmids, err := EntrezPMIDs(db, 3643)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{9001, 9002}, pmids)
	})

	t.Run("by hgnc id", func(t *testing.T) {
		pmids, err := EntrezPMIDsForHGNC(db, 6091)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{9001, 9002}, pmids)
	})

	t.Run("by uniprot id", func(t *testing.T) {
		pmids, err := EntrezPMIDsForUniprot(db, "P06213")
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{9001, 9002}, pmids)
	})

	t.Run("taxon id", func(t *testing.T) {
		taxonID, ok, err := TaxonIDForUniprot(db, "P06213")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(9606), taxonID)

		_, ok, err = TaxonIDForUniprot(db, "Q99999")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMeshIDConversions(t *testing.T) {
	t.Run("descriptor", func(t *testing.T) {
		num, isConcept, ok := MeshIDToMeshNum("D018599")
		require.True(t, ok)
		assert.Equal(t, int64(18599), num)
		assert.Equal(t, int64(0), isConcept)
		assert.Equal(t, "D018599", MeshNumToMeshID(num, isConcept))
	})

	t.Run("concept", func(t *testing.T) {
		num, isConcept, ok := MeshIDToMeshNum("C000123")
		require.True(t, ok)
		assert.Equal(t, int64(123), num)
		assert.Equal(t, int64(1), isConcept)
		assert.Equal(t, "C000123", MeshNumToMeshID(num, isConcept))
	})

	t.Run("wide padding past the range thresholds", func(t *testing.T) {
		assert.Equal(t, "D000066332", MeshNumToMeshID(66332, 0))
		assert.Equal(t, "C000588418", MeshNumToMeshID(588418, 1))
	})

	t.Run("invalid prefix", func(t *testing.T) {
		_, _, ok := MeshIDToMeshNum("X000001")
		assert.False(t, ok)
	})

	t.Run("non-numeric tail", func(t *testing.T) {
		// The whole tail must parse, not just a leading run of digits.
		_, _, ok := MeshIDToMeshNum("D18X99")
		assert.False(t, ok)

		_, _, ok = MeshIDToMeshNum("C")
		assert.False(t, ok)
	})
}

func TestMeshQueries(t *testing.T) {
	db := setupSnapshotDB(t)

	t.Run("major topic only", func(t *testing.T) {
		pmids, err := PMIDsForMeshTerm(db, "D018599", true)
		require.NoError(t, err)
		assert.Equal(t, []int64{9001}, pmids)
	})

	t.Run("non major topic", func(t *testing.T) {
		pmids, err := PMIDsForMeshTerm(db, "D018599", false)
		require.NoError(t, err)
		assert.Equal(t, []int64{9002}, pmids)
	})

	t.Run("unparseable mesh id", func(t *testing.T) {
		pmids, err := PMIDsForMeshTerm(db, "bogus", true)
		require.NoError(t, err)
		assert.Empty(t, pmids)
	})

	t.Run("grounding xref", func(t *testing.T) {
		meshIDs, err := MeshTermsForGrounding(db, "EFO", "0000001")
		require.NoError(t, err)
		assert.Equal(t, []string{"D018599"}, meshIDs)
	})
}

func TestTextSample(t *testing.T) {
	db := setupSnapshotDB(t)

	t.Run("all types", func(t *testing.T) {
		tc, err := TextSample(db, 3, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, tc.Len())
	})

	t.Run("restricted types", func(t *testing.T) {
		tc, err := TextSample(db, 3, []string{content.TypeTitle})
		require.NoError(t, err)
		assert.Empty(t, tc.Fulltexts)
		assert.Empty(t, tc.Abstracts)
		assert.Len(t, tc.Titles, 1)
	})
}

func TestDecodeParagraphsBadContent(t *testing.T) {
	_, err := decodeParagraphs([]byte("not json"))
	assert.Error(t, err)
}
