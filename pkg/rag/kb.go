// Package rag turns knowledge-base files into embedded chunks and
// retrieves the most similar ones for a query. Indexing is all-or-nothing:
// a knowledge base either carries a complete vector set or none.
package rag

// File is one raw knowledge-base document.
type File struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// KnowledgeBase groups files with their optional vector index. Vectors is
// nil until the base has been indexed and is replaced wholesale on
// re-index, never patched.
type KnowledgeBase struct {
	ID      string     `json:"id"`
	Files   []File     `json:"files"`
	Vectors *VectorSet `json:"vectors,omitempty"`
}

// VectorSet is the complete embedding index of one knowledge base.
type VectorSet struct {
	ModelID    string  `json:"model_id"`
	ProviderID string  `json:"provider_id"`
	Chunks     []Chunk `json:"chunks"`
}

// Chunk is one embedded fragment of a source file. Index is the 0-based
// position within the file; (FileID, Index) is unique per knowledge base.
type Chunk struct {
	FileID    string    `json:"file_id"`
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Indexed reports whether the knowledge base carries a vector set.
func (kb *KnowledgeBase) Indexed() bool {
	return kb != nil && kb.Vectors != nil
}
