package rag

import (
	"fmt"
	"strings"
)

// FormatContextMessage renders retrieved chunks plus the original query
// into one text block for injection as augmented user content. The
// rendering is pure and deterministic: identical input yields identical
// output.
func FormatContextMessage(chunks []ScoredChunk, resultCount int, originalQuery string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Answer using the context below (%d of %d requested passages).\n\n", len(chunks), resultCount)
	for i, chunk := range chunks {
		fmt.Fprintf(&sb, "[%d] (file %s, chunk %d, similarity %.3f)\n%s\n\n", i+1, chunk.FileID, chunk.Index, chunk.Similarity, chunk.Text)
	}
	fmt.Fprintf(&sb, "Question: %s", originalQuery)
	return sb.String()
}
