// Package mcpserver exposes the Stache operation set as Model Context
// Protocol tools over a stdio transport.
//
// Every tool takes a schema-validated argument object and returns
// human-readable text. Identifier arguments are checked against an
// allow-list before any network call; any failure becomes an error-text
// result so the host protocol always receives a well-formed answer.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/stachelabs/stache-go/internal/stache"
)

// Server wraps the MCP SDK server around a Stache client.
type Server struct {
	mcpServer *mcp.Server
	client    *stache.Client
	logger    *slog.Logger
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	Client  *stache.Client
	Logger  *slog.Logger
}

// NewServer creates the MCP server and registers all tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		client:    cfg.Client,
		logger:    cfg.Logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run serves MCP over the given transport until ctx is cancelled. Blocking.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// Close releases the owned client. Safe to call more than once.
func (s *Server) Close() error {
	return s.client.Close()
}

func (s *Server) registerTools() error {
	type registration struct {
		name string
		fn   func() error
	}
	for _, reg := range []registration{
		{"search", s.registerSearch},
		{"ingest_text", s.registerIngestText},
		{"list_namespaces", s.registerListNamespaces},
		{"list_documents", s.registerListDocuments},
		{"get_document", s.registerGetDocument},
		{"delete_document", s.registerDeleteDocument},
		{"update_document", s.registerUpdateDocument},
		{"create_namespace", s.registerCreateNamespace},
		{"get_namespace", s.registerGetNamespace},
		{"update_namespace", s.registerUpdateNamespace},
		{"delete_namespace", s.registerDeleteNamespace},
	} {
		if err := reg.fn(); err != nil {
			return fmt.Errorf("tool %s: %w", reg.name, err)
		}
	}
	return nil
}

// textResult builds a plain text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// errorResult builds an error-text tool result. Failures never propagate as
// protocol errors; the host always gets an answer.
func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// addTool registers one typed tool with a schema inferred from its input
// struct.
func addTool[T any](s *Server, name, description string, handler func(ctx context.Context, in T) *mcp.CallToolResult) error {
	inputSchema, err := jsonschema.For[T](nil)
	if err != nil {
		return fmt.Errorf("building input schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in T) (*mcp.CallToolResult, any, error) {
		s.logger.Info("tool called", "tool", name)
		return handler(ctx, in), nil, nil
	})
	return nil
}

type searchInput struct {
	Query     string         `json:"query" jsonschema:"Search query"`
	Namespace string         `json:"namespace,omitempty" jsonschema:"Optional namespace filter"`
	TopK      int            `json:"top_k,omitempty" jsonschema:"Number of results (default 20, max 50)"`
	Rerank    *bool          `json:"rerank,omitempty" jsonschema:"Whether to rerank results for relevance (default true)"`
	Filter    map[string]any `json:"filter,omitempty" jsonschema:"Metadata filter"`
}

func (s *Server) registerSearch() error {
	return addTool(s, "search",
		"Semantic search in Stache knowledge base. Returns relevant text chunks ranked by relevance.",
		func(ctx context.Context, in searchInput) *mcp.CallToolResult {
			query := strings.TrimSpace(in.Query)
			if query == "" {
				return errorResult("query is required")
			}

			namespace := strings.TrimSpace(in.Namespace)
			if namespace != "" {
				if problem := validateID(namespace, "Namespace"); problem != "" {
					return errorResult("%s", problem)
				}
			}

			opts := stache.DefaultSearchOptions()
			opts.Namespace = namespace
			opts.Filter = in.Filter
			// Synthesis is for the CLI; tool callers do their own reasoning
			// over the raw chunks.
			opts.Synthesize = false
			if in.TopK > 0 {
				opts.TopK = in.TopK
			}
			if in.Rerank != nil {
				opts.Rerank = *in.Rerank
			}

			result, err := s.client.Search(ctx, query, opts)
			if err != nil {
				return errorResult("%v", err)
			}
			return textResult(formatSearchResults(result))
		})
}

type ingestTextInput struct {
	Text             string         `json:"text" jsonschema:"Text content to ingest"`
	Namespace        string         `json:"namespace,omitempty" jsonschema:"Target namespace"`
	Metadata         map[string]any `json:"metadata,omitempty" jsonschema:"Optional metadata to attach"`
	ChunkingStrategy string         `json:"chunking_strategy,omitempty" jsonschema:"Chunking strategy (recursive, markdown, semantic, character)"`
	PrependMetadata  []string       `json:"prepend_metadata,omitempty" jsonschema:"Metadata keys to prepend to chunks for better search"`
}

func (s *Server) registerIngestText() error {
	return addTool(s, "ingest_text",
		"Add text content to Stache knowledge base. Use to save notes, documentation, or synthesized information.",
		func(ctx context.Context, in ingestTextInput) *mcp.CallToolResult {
			text := strings.TrimSpace(in.Text)
			if text == "" {
				return errorResult("text is required")
			}

			namespace := strings.TrimSpace(in.Namespace)
			if namespace != "" {
				if problem := validateID(namespace, "Namespace"); problem != "" {
					return errorResult("%s", problem)
				}
			}

			result, err := s.client.IngestText(ctx, text, stache.IngestOptions{
				Namespace:        namespace,
				Metadata:         in.Metadata,
				ChunkingStrategy: in.ChunkingStrategy,
				PrependMetadata:  in.PrependMetadata,
			})
			if err != nil {
				return errorResult("%v", err)
			}
			return textResult(formatIngestResult(result))
		})
}

type emptyInput struct{}

func (s *Server) registerListNamespaces() error {
	return addTool(s, "list_namespaces",
		"List all namespaces in the knowledge base.",
		func(ctx context.Context, _ emptyInput) *mcp.CallToolResult {
			result, err := s.client.ListNamespaces(ctx)
			if err != nil {
				return errorResult("%v", err)
			}
			return textResult(formatNamespaceList(result))
		})
}

type listDocumentsInput struct {
	Namespace string `json:"namespace,omitempty" jsonschema:"Optional namespace filter"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Max documents (default 50, max 100)"`
}

func (s *Server) registerListDocuments() error {
	return addTool(s, "list_documents",
		"List documents, optionally filtered by namespace.",
		func(ctx context.Context, in listDocumentsInput) *mcp.CallToolResult {
			namespace := strings.TrimSpace(in.Namespace)
			if namespace != "" {
				if problem := validateID(namespace, "Namespace"); problem != "" {
					return errorResult("%s", problem)
				}
			}

			result, err := s.client.ListDocuments(ctx, namespace, in.Limit, "")
			if err != nil {
				return errorResult("%v", err)
			}
			return textResult(formatDocumentList(result))
		})
}

type documentRefInput struct {
	DocID     string `json:"doc_id" jsonschema:"Document ID"`
	Namespace string `json:"namespace,omitempty" jsonschema:"Namespace (default 'default')"`
}

// validateDocumentRef normalizes and checks a doc_id/namespace pair,
// returning an error result or nil when valid.
func validateDocumentRef(in *documentRefInput) *mcp.CallToolResult {
	in.DocID = strings.TrimSpace(in.DocID)
	if in.DocID == "" {
		return errorResult("doc_id is required")
	}
	if problem := validateID(in.DocID, "Document ID"); problem != "" {
		return errorResult("%s", problem)
	}

	in.Namespace = strings.TrimSpace(in.Namespace)
	if in.Namespace == "" {
		in.Namespace = "default"
	}
	if problem := validateID(in.Namespace, "Namespace"); problem != "" {
		return errorResult("%s", problem)
	}
	return nil
}

func (s *Server) registerGetDocument() error {
	return addTool(s, "get_document",
		"Get document content by ID.",
		func(ctx context.Context, in documentRefInput) *mcp.CallToolResult {
			if problem := validateDocumentRef(&in); problem != nil {
				return problem
			}

			result, err := s.client.GetDocument(ctx, in.DocID, in.Namespace)
			if err != nil {
				return errorResult("%v", err)
			}
			return textResult(formatDocument(result))
		})
}

func (s *Server) registerDeleteDocument() error {
	return addTool(s, "delete_document",
		"Delete a document by ID.",
		func(ctx context.Context, in documentRefInput) *mcp.CallToolResult {
			if problem := validateDocumentRef(&in); problem != nil {
				return problem
			}

			result, err := s.client.DeleteDocument(ctx, in.DocID, in.Namespace)
			if err != nil {
				return errorResult("%v", err)
			}
			if success, _ := result["success"].(bool); !success {
				return errorResult("%s", stringField(result, "Delete failed", "error"))
			}
			return textResult(fmt.Sprintf("Deleted document %s", in.DocID))
		})
}

type updateDocumentInput struct {
	DocID        string         `json:"doc_id" jsonschema:"Document ID to update"`
	Namespace    string         `json:"namespace,omitempty" jsonschema:"Current namespace (default 'default')"`
	NewNamespace string         `json:"new_namespace,omitempty" jsonschema:"New namespace to migrate to"`
	NewFilename  string         `json:"new_filename,omitempty" jsonschema:"New filename"`
	Metadata     map[string]any `json:"metadata,omitempty" jsonschema:"Custom metadata to replace existing"`
}

func (s *Server) registerUpdateDocument() error {
	return addTool(s, "update_document",
		"Update document metadata (namespace, filename, custom metadata).",
		func(ctx context.Context, in updateDocumentInput) *mcp.CallToolResult {
			ref := documentRefInput{DocID: in.DocID, Namespace: in.Namespace}
			if problem := validateDocumentRef(&ref); problem != nil {
				return problem
			}

			updates := map[string]any{}
			if newNS := strings.TrimSpace(in.NewNamespace); newNS != "" {
				if problem := validateID(newNS, "New namespace"); problem != "" {
					return errorResult("%s", problem)
				}
				updates["namespace"] = newNS
			}
			if newName := strings.TrimSpace(in.NewFilename); newName != "" {
				updates["filename"] = newName
			}
			if len(in.Metadata) > 0 {
				updates["metadata"] = in.Metadata
			}
			if len(updates) == 0 {
				return errorResult("at least one update field required (new_namespace, new_filename, metadata)")
			}

			result, err := s.client.UpdateDocument(ctx, ref.DocID, ref.Namespace, updates)
			if err != nil {
				return errorResult("%v", err)
			}

			chunks := intField(result, "updated_chunks")
			finalNS := stringField(result, ref.Namespace, "namespace")
			return textResult(fmt.Sprintf("Updated document %s (%d chunks) in namespace %s", ref.DocID, chunks, finalNS))
		})
}

type createNamespaceInput struct {
	ID          string `json:"id" jsonschema:"Namespace ID (e.g. 'mba/finance')"`
	Name        string `json:"name" jsonschema:"Display name"`
	Description string `json:"description,omitempty" jsonschema:"What belongs in this namespace"`
	ParentID    string `json:"parent_id,omitempty" jsonschema:"Optional parent namespace ID for hierarchy"`
}

func (s *Server) registerCreateNamespace() error {
	return addTool(s, "create_namespace",
		"Create a new namespace.",
		func(ctx context.Context, in createNamespaceInput) *mcp.CallToolResult {
			id := strings.TrimSpace(in.ID)
			name := strings.TrimSpace(in.Name)
			if id == "" || name == "" {
				return errorResult("id and name are required")
			}
			if problem := validateID(id, "Namespace ID"); problem != "" {
				return errorResult("%s", problem)
			}

			parentID := strings.TrimSpace(in.ParentID)
			if parentID != "" {
				if problem := validateID(parentID, "Parent namespace ID"); problem != "" {
					return errorResult("%s", problem)
				}
			}

			if _, err := s.client.CreateNamespace(ctx, id, name, in.Description, parentID, nil); err != nil {
				return errorResult("%v", err)
			}
			return textResult(fmt.Sprintf("Created namespace: %s", id))
		})
}

type namespaceRefInput struct {
	ID string `json:"id" jsonschema:"Namespace ID"`
}

func (s *Server) registerGetNamespace() error {
	return addTool(s, "get_namespace",
		"Get namespace details.",
		func(ctx context.Context, in namespaceRefInput) *mcp.CallToolResult {
			id := strings.TrimSpace(in.ID)
			if id == "" {
				return errorResult("id is required")
			}
			if problem := validateID(id, "Namespace ID"); problem != "" {
				return errorResult("%s", problem)
			}

			result, err := s.client.GetNamespace(ctx, id)
			if err != nil {
				return errorResult("%v", err)
			}

			ns := result
			if nested, ok := result["namespace"].(map[string]any); ok {
				ns = nested
			}
			return textResult(fmt.Sprintf("**%s** (`%s`)\n%s",
				stringField(ns, "", "name"),
				stringField(ns, id, "id"),
				stringField(ns, "", "description")))
		})
}

type updateNamespaceInput struct {
	ID          string `json:"id" jsonschema:"Namespace ID"`
	Name        string `json:"name,omitempty" jsonschema:"New name"`
	Description string `json:"description,omitempty" jsonschema:"New description"`
}

func (s *Server) registerUpdateNamespace() error {
	return addTool(s, "update_namespace",
		"Update namespace properties.",
		func(ctx context.Context, in updateNamespaceInput) *mcp.CallToolResult {
			id := strings.TrimSpace(in.ID)
			if id == "" {
				return errorResult("id is required")
			}
			if problem := validateID(id, "Namespace ID"); problem != "" {
				return errorResult("%s", problem)
			}

			update := stache.NamespaceUpdate{}
			if in.Name != "" {
				update.Name = &in.Name
			}
			if in.Description != "" {
				update.Description = &in.Description
			}

			if _, err := s.client.UpdateNamespace(ctx, id, update); err != nil {
				return errorResult("%v", err)
			}
			return textResult(fmt.Sprintf("Updated namespace: %s", id))
		})
}

type deleteNamespaceInput struct {
	ID      string `json:"id" jsonschema:"Namespace ID"`
	Cascade bool   `json:"cascade,omitempty" jsonschema:"Delete children too"`
}

func (s *Server) registerDeleteNamespace() error {
	return addTool(s, "delete_namespace",
		"Delete a namespace.",
		func(ctx context.Context, in deleteNamespaceInput) *mcp.CallToolResult {
			id := strings.TrimSpace(in.ID)
			if id == "" {
				return errorResult("id is required")
			}
			if problem := validateID(id, "Namespace ID"); problem != "" {
				return errorResult("%s", problem)
			}

			result, err := s.client.DeleteNamespace(ctx, id, in.Cascade)
			if err != nil {
				return errorResult("%v", err)
			}
			if success, _ := result["success"].(bool); !success {
				return errorResult("%s", stringField(result, "Delete failed", "error"))
			}
			return textResult(fmt.Sprintf("Deleted namespace: %s", id))
		})
}
