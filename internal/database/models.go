// Snapshot table models. Content is indexed by text_ref_id, the primary key
// of the text_ref table in the upstream database the snapshot is built from.
package database

// AgentText links a raw agent text, as extracted from the literature, to the
// text reference it was read from.
type AgentText struct {
	ID        int64  `gorm:"primaryKey;column:id" json:"id"`
	AgentText string `gorm:"column:agent_text" json:"agent_text"`
	TextRefID int64  `gorm:"column:text_ref_id" json:"text_ref_id"`
}

// TableName maps AgentText to the agent_texts table.
func (AgentText) TableName() string {
	return "agent_texts"
}

// BestContent holds the best piece of text content available for a text
// reference. Content is a JSON array of paragraphs, zlib-compressed for the
// larger entries. TextType is one of fulltext, abstract or title.
type BestContent struct {
	ID             int64  `gorm:"primaryKey;column:id" json:"id"`
	TextRefID      int64  `gorm:"column:text_ref_id" json:"text_ref_id"`
	TextContentID1 int64  `gorm:"column:text_content_id1" json:"text_content_id1"`
	TextContentID2 int64  `gorm:"column:text_content_id2" json:"text_content_id2"`
	TextType       string `gorm:"column:text_type" json:"text_type"`
	Content        []byte `gorm:"column:content" json:"-"`
}

// TableName maps BestContent to the best_content table.
func (BestContent) TableName() string {
	return "best_content"
}

// EntrezPMID records a literature annotation for a gene: the pmid of an
// article annotated in Entrez as mentioning the gene, together with the
// gene's identifiers in other namespaces.
type EntrezPMID struct {
	ID        int64  `gorm:"primaryKey;column:id" json:"id"`
	TaxonID   int64  `gorm:"column:taxon_id" json:"taxon_id"`
	EntrezID  int64  `gorm:"column:entrez_id" json:"entrez_id"`
	UniprotID string `gorm:"column:uniprot_id" json:"uniprot_id"`
	HGNCID    int64  `gorm:"column:hgnc_id" json:"hgnc_id"`
	PMID      int64  `gorm:"column:pmid" json:"pmid"`
}

// TableName maps EntrezPMID to the entrez_pmids table.
func (EntrezPMID) TableName() string {
	return "entrez_pmids"
}

// PMIDTextRef maps a text reference to its pmid. Not every text reference
// has one.
type PMIDTextRef struct {
	TextRefID int64  `gorm:"primaryKey;column:text_ref_id" json:"text_ref_id"`
	PMID      *int64 `gorm:"column:pmid" json:"pmid"`
}

// TableName maps PMIDTextRef to the pmid_text_refs table.
func (PMIDTextRef) TableName() string {
	return "pmid_text_refs"
}

// MeshPMID records a MeSH annotation of an article. MeshNum and IsConcept
// together encode the mesh id: the numeric part plus whether the term is a
// supplementary concept (C prefix) rather than a descriptor (D prefix).
type MeshPMID struct {
	MeshNum    int64 `gorm:"column:mesh_num" json:"mesh_num"`
	IsConcept  int64 `gorm:"column:is_concept" json:"is_concept"`
	MajorTopic int64 `gorm:"column:major_topic" json:"major_topic"`
	PMIDNum    int64 `gorm:"column:pmid_num" json:"pmid_num"`
}

// TableName maps MeshPMID to the mesh_pmids table.
func (MeshPMID) TableName() string {
	return "mesh_pmids"
}

// MeshXref maps a curie (namespace:identifier grounding) to a mesh term.
type MeshXref struct {
	ID        int64  `gorm:"primaryKey;column:id" json:"id"`
	MeshNum   int64  `gorm:"column:mesh_num" json:"mesh_num"`
	IsConcept int64  `gorm:"column:is_concept" json:"is_concept"`
	Curie     string `gorm:"column:curie" json:"curie"`
}

// TableName maps MeshXref to the mesh_xrefs table.
func (MeshXref) TableName() string {
	return "mesh_xrefs"
}
