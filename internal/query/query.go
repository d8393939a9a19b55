// Package query provides the read API over the snapshot database. These
// functions mostly serve model training and grounding workflows downstream;
// they only ever read.
//
// Large id lists are batched at 100000 ids per statement to stay under the
// SQLite variable limit while keeping round trips low.
package query

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zlib"
	"gorm.io/gorm"

	"github.com/indralab/dblite/internal/content"
	apperrors "github.com/indralab/dblite/internal/errors"
)

// batchSize is the maximum number of ids bound into one IN clause.
const batchSize = 100000

// decodeParagraphs restores the paragraph list from a best_content blob.
// Larger entries are zlib-compressed; either way the payload is a JSON
// array of paragraph strings.
func decodeParagraphs(raw []byte) ([]string, error) {
	data := raw
	if len(raw) >= 2 && raw[0] == 0x78 {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to open zlib content: %w", err)
		}
		defer zr.Close()
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress content: %w", err)
		}
	}

	var paragraphs []string
	if err := json.Unmarshal(data, &paragraphs); err != nil {
		return nil, fmt.Errorf("failed to decode content paragraphs: %w", err)
	}
	return paragraphs, nil
}

// batches splits ids into batchSize-long chunks.
func batches(ids []int64) [][]int64 {
	var out [][]int64
	for idx := 0; idx < len(ids); idx += batchSize {
		end := idx + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[idx:end])
	}
	return out
}

// contentRow matches the best_content columns selected below.
type contentRow struct {
	TextRefID int64  `gorm:"column:text_ref_id"`
	TextType  string `gorm:"column:text_type"`
	Content   []byte `gorm:"column:content"`
}

// ParagraphsForTextRefIDs returns the unprocessed best content for the given
// text ref ids. The snapshot holds the best piece of content per text ref,
// prioritised fulltext > abstract > title.
func ParagraphsForTextRefIDs(db *gorm.DB, textRefIDs []int64) (*content.TextContent, error) {
	var rows []content.Row
	for _, batch := range batches(textRefIDs) {
		var raw []contentRow
		err := db.Raw(
			"SELECT text_ref_id, text_type, content FROM best_content WHERE text_ref_id IN ?",
			batch,
		).Scan(&raw).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabaseQuery, "best_content query failed", err)
		}
		for _, r := range raw {
			paragraphs, err := decodeParagraphs(r.Content)
			if err != nil {
				return nil, apperrors.Wrapf(apperrors.ErrDatabaseQuery, err,
					"bad content for text_ref_id %d", r.TextRefID)
			}
			rows = append(rows, content.Row{
				TextRefID:  r.TextRefID,
				TextType:   r.TextType,
				Paragraphs: paragraphs,
			})
		}
	}
	return content.New(rows), nil
}

// PlaintextsForTextRefIDs returns processed plaintexts for the given text
// ref ids, optionally filtered to paragraphs containing one of the contains
// tokens and to the given text types.
func PlaintextsForTextRefIDs(
	db *gorm.DB, textRefIDs []int64, contains []string, textTypes []string,
) (*content.Plaintexts, error) {
	tc, err := ParagraphsForTextRefIDs(db, textRefIDs)
	if err != nil {
		return nil, err
	}
	plaintexts, err := tc.Process(contains, textTypes)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidParams, "bad contains filter", err)
	}
	return plaintexts, nil
}

// idPair scans two-column id mappings.
type idPair struct {
	Left  int64 `gorm:"column:left_id"`
	Right int64 `gorm:"column:right_id"`
}

// TextRefIDsForPMIDs maps pmids to text ref ids. Pmids with no entry in the
// snapshot are absent from the result; callers track them if needed.
func TextRefIDsForPMIDs(db *gorm.DB, pmids []int64) (map[int64]int64, error) {
	result := make(map[int64]int64)
	for _, batch := range batches(pmids) {
		var pairs []idPair
		err := db.Raw(
			"SELECT pmid AS left_id, text_ref_id AS right_id FROM pmid_text_refs WHERE pmid IN ?",
			batch,
		).Scan(&pairs).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabaseQuery, "pmid_text_refs query failed", err)
		}
		for _, p := range pairs {
			result[p.Left] = p.Right
		}
	}
	return result, nil
}

// PMIDsForTextRefIDs maps text ref ids to their pmids, skipping text refs
// without one.
func PMIDsForTextRefIDs(db *gorm.DB, textRefIDs []int64) (map[int64]int64, error) {
	result := make(map[int64]int64)
	for _, batch := range batches(textRefIDs) {
		var pairs []idPair
		err := db.Raw(
			"SELECT text_ref_id AS left_id, pmid AS right_id FROM pmid_text_refs WHERE text_ref_id IN ? AND pmid IS NOT NULL",
			batch,
		).Scan(&pairs).Error
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabaseQuery, "pmid_text_refs query failed", err)
		}
		for _, p := range pairs {
			result[p.Left] = p.Right
		}
	}
	return result, nil
}

// TextRefIDsForAgentText returns the text refs of articles with at least one
// extraction whose raw agent text equals agentText.
func TextRefIDsForAgentText(db *gorm.DB, agentText string) ([]int64, error) {
	var ids []int64
	err := db.Raw(
		"SELECT text_ref_id FROM agent_texts WHERE agent_text = ?", agentText,
	).Scan(&ids).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabaseQuery, "agent_texts query failed", err)
	}
	return ids, nil
}

// EntrezPMIDs returns pmids of articles annotated in Entrez for the gene
// with the given Entrez id, e.g. 3643 for INSR.
func EntrezPMIDs(db *gorm.DB, entrezID int64) ([]int64, error) {
	var pmids []int64
	err := db.Raw(
		"SELECT pmid FROM entrez_pmids WHERE entrez_id = ?", entrezID,
	).Scan(&pmids).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabaseQuery, "entrez_pmids query failed", err)
	}
	return pmids, nil
}

// EntrezPMIDsForHGNC returns pmids of articles annotated in Entrez for the
// human gene with the given HGNC id, e.g. 6091 for INSR.
func EntrezPMIDsForHGNC(db *gorm.DB, hgncID int64) ([]int64, error) {
	var pmids []int64
	err := db.Raw(
		"SELECT pmid FROM entrez_pmids WHERE hgnc_id = ?", hgncID,
	).Scan(&pmids).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabaseQuery, "entrez_pmids query failed", err)
	}
	return pmids, nil
}

// EntrezPMIDsForUniprot returns pmids of articles annotated in Entrez for
// the protein with the given Uniprot id, e.g. P06213 for human INSR.
func EntrezPMIDsForUniprot(db *gorm.DB, uniprotID string) ([]int64, error) {
	var pmids []int64
	err := db.Raw(
		"SELECT pmid FROM entrez_pmids WHERE uniprot_id = ?", uniprotID,
	).Scan(&pmids).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabaseQuery, "entrez_pmids query failed", err)
	}
	return pmids, nil
}

// TaxonIDForUniprot returns the NCBI taxon id of the species the given
// Uniprot protein belongs to. ok is false when the id is unknown.
func TaxonIDForUniprot(db *gorm.DB, uniprotID string) (taxonID int64, ok bool, err error) {
	var taxonIDs []int64
	qerr := db.Raw(
		"SELECT taxon_id FROM entrez_pmids WHERE uniprot_id = ?", uniprotID,
	).Scan(&taxonIDs).Error
	if qerr != nil {
		return 0, false, apperrors.Wrap(apperrors.ErrDatabaseQuery, "entrez_pmids query failed", qerr)
	}
	if len(taxonIDs) == 0 {
		return 0, false, nil
	}
	return taxonIDs[0], true, nil
}

// MeshIDToMeshNum maps a mesh id like D018599 to the (mesh_num, is_concept)
// pair used to key mesh terms in the snapshot: the numeric part with leading
// zeros removed, and 1 when the term is a supplementary concept (C prefix).
// ok is false for ids with neither a C nor a D prefix.
func MeshIDToMeshNum(meshID string) (meshNum int64, isConcept int64, ok bool) {
	if len(meshID) < 2 || (meshID[0] != 'C' && meshID[0] != 'D') {
		return 0, 0, false
	}
	num, err := strconv.ParseInt(meshID[1:], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if meshID[0] == 'C' {
		isConcept = 1
	}
	return num, isConcept, true
}

// MeshNumToMeshID maps a (mesh_num, is_concept) pair back to a mesh id.
// The zero padding width changed when the respective numbering ranges
// overflowed six digits, hence the thresholds.
func MeshNumToMeshID(meshNum int64, isConcept int64) string {
	prefix := "D"
	threshold := int64(66332)
	if isConcept != 0 {
		prefix = "C"
		threshold = 588418
	}
	width := 6
	if meshNum >= threshold {
		width = 9
	}
	return prefix + fmt.Sprintf("%0*d", width, meshNum)
}

// PMIDsForMeshTerm returns pmids of articles annotated with the given mesh
// heading. With majorTopic set, only articles where the heading is a major
// topic are returned. An unparseable mesh id yields an empty result.
func PMIDsForMeshTerm(db *gorm.DB, meshID string, majorTopic bool) ([]int64, error) {
	meshNum, isConcept, ok := MeshIDToMeshNum(meshID)
	if !ok {
		return nil, nil
	}
	major := 0
	if majorTopic {
		major = 1
	}
	var pmids []int64
	err := db.Raw(
		"SELECT pmid_num FROM mesh_pmids WHERE mesh_num = ? AND is_concept = ? AND major_topic = ?",
		meshNum, isConcept, major,
	).Scan(&pmids).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabaseQuery, "mesh_pmids query failed", err)
	}
	return pmids, nil
}

// MeshTermsForGrounding returns the mesh ids mapped to a grounding given as
// a namespace and an identifier within it. Namespaces follow the INDRA
// nomenclature, which differs from identifiers.org in places.
func MeshTermsForGrounding(db *gorm.DB, namespace, identifier string) ([]string, error) {
	curie := fmt.Sprintf("%s:%s", namespace, identifier)
	var pairs []struct {
		MeshNum   int64 `gorm:"column:mesh_num"`
		IsConcept int64 `gorm:"column:is_concept"`
	}
	err := db.Raw(
		"SELECT mesh_num, is_concept FROM mesh_xrefs WHERE curie = ?", curie,
	).Scan(&pairs).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabaseQuery, "mesh_xrefs query failed", err)
	}
	meshIDs := make([]string, 0, len(pairs))
	for _, p := range pairs {
		meshIDs = append(meshIDs, MeshNumToMeshID(p.MeshNum, p.IsConcept))
	}
	return meshIDs, nil
}

// TextSample returns a random sample of unprocessed content drawn from
// entries whose best content has one of the given text types. nil text
// types samples from all of them.
func TextSample(db *gorm.DB, numSamples int, textTypes []string) (*content.TextContent, error) {
	if textTypes == nil {
		textTypes = content.AllTypes
	}
	placeholder := strings.TrimSuffix(strings.Repeat("?,", len(textTypes)), ",")
	args := make([]interface{}, 0, len(textTypes)+1)
	for _, tt := range textTypes {
		args = append(args, tt)
	}
	args = append(args, numSamples)

	var raw []contentRow
	err := db.Raw(fmt.Sprintf(
		`SELECT text_ref_id, text_type, content FROM best_content
		 WHERE id IN (SELECT id FROM best_content WHERE text_type IN (%s) ORDER BY RANDOM() LIMIT ?)`,
		placeholder,
	), args...).Scan(&raw).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabaseQuery, "best_content sample query failed", err)
	}

	rows := make([]content.Row, 0, len(raw))
	for _, r := range raw {
		paragraphs, err := decodeParagraphs(r.Content)
		if err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrDatabaseQuery, err,
				"bad content for text_ref_id %d", r.TextRefID)
		}
		rows = append(rows, content.Row{
			TextRefID:  r.TextRefID,
			TextType:   r.TextType,
			Paragraphs: paragraphs,
		})
	}
	return content.New(rows), nil
}
