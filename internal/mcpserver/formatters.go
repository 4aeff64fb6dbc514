package mcpserver

import (
	"fmt"
	"strings"

	"github.com/stachelabs/stache-go/internal/stache"
)

// maxChunkLength caps how much of each source chunk is echoed back to the
// model host.
const maxChunkLength = 1000

// The formatters below tolerate backend schema variants (chunk_count vs
// total_chunks, reconstructed_text vs text) the same way the CLI does.

func formatSearchResults(result stache.Payload) string {
	var sb strings.Builder
	sb.WriteString("# Search Results\n\n")

	sources, _ := result["sources"].([]any)
	if len(sources) == 0 {
		sb.WriteString("No results found.")
		return sb.String()
	}

	for i, raw := range sources {
		chunk, _ := raw.(map[string]any)
		score, _ := chunk["score"].(float64)
		text, _ := chunk["content"].(string)
		metadata, _ := chunk["metadata"].(map[string]any)

		filename := stringField(metadata, "Unknown", "filename")
		namespace := stringField(metadata, "default", "namespace")

		// Truncate on a rune boundary; a byte slice could split a UTF-8
		// sequence and hand the host invalid text.
		if runes := []rune(text); len(runes) > maxChunkLength {
			text = string(runes[:maxChunkLength]) + "..."
		}

		fmt.Fprintf(&sb, "### %d. (score: %.3f)\n", i+1, score)
		fmt.Fprintf(&sb, "**Source:** %s | **Namespace:** %s\n", filename, namespace)
		fmt.Fprintf(&sb, "\n%s\n\n", text)
	}

	return sb.String()
}

func formatIngestResult(result stache.Payload) string {
	chunks := intField(result, "chunks_created")
	docID := stringField(result, "", "doc_id", "document_id")
	return fmt.Sprintf("Ingested successfully: %d chunks created (doc_id: %s)", chunks, docID)
}

func formatNamespaceList(result stache.Payload) string {
	namespaces, _ := result["namespaces"].([]any)
	if len(namespaces) == 0 {
		return "No namespaces found."
	}

	var sb strings.Builder
	sb.WriteString("# Namespaces\n\n")
	for _, raw := range namespaces {
		ns, _ := raw.(map[string]any)
		fmt.Fprintf(&sb, "- **%s** (`%s`)\n", stringField(ns, "Unknown", "name"), stringField(ns, "", "id"))
		if desc := stringField(ns, "", "description"); desc != "" {
			fmt.Fprintf(&sb, "  %s\n", desc)
		}
	}
	return sb.String()
}

func formatDocumentList(result stache.Payload) string {
	documents, _ := result["documents"].([]any)
	if len(documents) == 0 {
		return "No documents found."
	}

	var sb strings.Builder
	sb.WriteString("# Documents\n\n")
	for _, raw := range documents {
		doc, _ := raw.(map[string]any)
		chunks := intField(doc, "chunk_count", "total_chunks")
		fmt.Fprintf(&sb, "- **%s** (`%s`) - %d chunks\n",
			stringField(doc, "Untitled", "filename"),
			stringField(doc, "", "doc_id"),
			chunks)
	}
	return sb.String()
}

func formatDocument(result stache.Payload) string {
	return strings.Join([]string{
		"# " + stringField(result, "Untitled", "filename"),
		fmt.Sprintf("**ID:** `%s` | **Namespace:** %s",
			stringField(result, "", "doc_id"),
			stringField(result, "default", "namespace")),
		"---",
		stringField(result, "", "reconstructed_text", "text"),
	}, "\n")
}

// stringField returns the first present non-empty string among keys, else
// the fallback.
func stringField(m map[string]any, fallback string, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// intField returns the first present numeric value among keys, else 0.
func intField(m map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return 0
}
