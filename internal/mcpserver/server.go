// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the bridge operations for LLM integration via stdio transport.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/aprobridge/internal/noteservice"
)

const contractURI = "apro-bridge://api-contract"

// Server wraps the MCP server with the bridge tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *noteservice.Service
	logger *slog.Logger
}

// New creates a new MCP server with all bridge tools registered.
func New(svc *noteservice.Service, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, logger: logger}

	s.mcp = server.NewMCPServer(
		"Apro Bridge",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	idList := func(desc string) mcp.ToolOption {
		return mcp.WithArray("notes", mcp.Required(), mcp.Description(desc),
			mcp.Items(map[string]any{"type": "integer"}))
	}

	s.mcp.AddTool(mcp.NewTool("get_collection",
		mcp.WithDescription("List every deck and note type in the collection, sorted by name."),
	), s.getCollection)

	s.mcp.AddTool(mcp.NewTool("model_fields",
		mcp.WithDescription("Describe a note type: its fields, whether it is a cloze type, its cloze field, "+
			"first card template and CSS."),
		mcp.WithString("modelName", mcp.Required(), mcp.Description("Note type name, e.g. Basic")),
	), s.modelFields)

	s.mcp.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Create a note. The deck is created if it does not exist. "+
			"Fields the note type does not define are ignored."),
		mcp.WithString("deck", mcp.Required(), mcp.Description("Deck name; use :: for subdecks")),
		mcp.WithString("noteType", mcp.Required(), mcp.Description("Note type name")),
		mcp.WithObject("fields", mcp.Required(), mcp.Description("Field name to value")),
		mcp.WithArray("tags", mcp.Description("Tags to add"), mcp.Items(map[string]any{"type": "string"})),
	), s.addNote)

	s.mcp.AddTool(mcp.NewTool("notes_info",
		mcp.WithDescription("Fetch notes by id. The result has one entry per id, null where the note does not exist."),
		idList("Note ids"),
	), s.notesInfo)

	s.mcp.AddTool(mcp.NewTool("find_notes",
		mcp.WithDescription("Search notes and return matching ids. Read "+contractURI+" for the query syntax."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query, e.g. deck:Spanish tag:verb")),
	), s.findNotes)

	s.mcp.AddTool(mcp.NewTool("add_tags",
		mcp.WithDescription("Add space-separated tags to notes. Missing notes are skipped."),
		idList("Note ids"),
		mcp.WithString("tags", mcp.Required(), mcp.Description("Space-separated tags")),
	), s.addTags)

	s.mcp.AddTool(mcp.NewTool("remove_tags",
		mcp.WithDescription("Remove space-separated tags from notes. Missing notes are skipped."),
		idList("Note ids"),
		mcp.WithString("tags", mcp.Required(), mcp.Description("Space-separated tags")),
	), s.removeTags)

	s.mcp.AddTool(mcp.NewTool("update_note_tags",
		mcp.WithDescription("Replace all tags of one note."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithString("tags", mcp.Required(), mcp.Description("Space-separated tags; empty clears them")),
	), s.updateNoteTags)

	s.mcp.AddTool(mcp.NewTool("update_note_fields",
		mcp.WithDescription("Overwrite fields of one note. Unknown fields are ignored."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note id")),
		mcp.WithObject("fields", mcp.Required(), mcp.Description("Field name to new value")),
	), s.updateNoteFields)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete one note and its cards."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Note id")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("store_media",
		mcp.WithDescription("Store a media file in the collection. Pass base64 in data, or a data: or http(s) URL in url. "+
			"Returns the stored file name, which is what note fields should reference."),
		mcp.WithString("data", mcp.Description("Base64 file content")),
		mcp.WithString("url", mcp.Description("data: URI or http(s) URL to fetch")),
		mcp.WithString("extension", mcp.Description("File extension without dot; detected from the URL when omitted")),
	), s.storeMedia)

	s.mcp.AddTool(mcp.NewTool("get_api_contract",
		mcp.WithDescription("Returns the bridge's HTTP contract and search syntax."),
	), s.getAPIContract)

	// Resource: HTTP contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "HTTP API Contract",
			mcp.WithResourceDescription("Routes, bodies and status codes of the bridge HTTP listener."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// bind decodes the tool arguments into target.
func bind(req mcp.CallToolRequest, target any) error {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// fail reports a tool failure to the user and to the caller.
func (s *Server) fail(tool string, err error) (*mcp.CallToolResult, error) {
	s.logger.Error("mcp tool failed", slog.String("tool", tool), slog.String("error", err.Error()))
	s.svc.Notifier().Error(fmt.Sprintf("Apro - Bridge Connector Error (%s):\n%s", tool, err.Error()))
	return mcp.NewToolResultError(err.Error()), nil
}

// jsonResult renders v as indented JSON. HTML is left unescaped so media
// references can be pasted into a note field as-is.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.TrimSuffix(buf.String(), "\n")), nil
}

func (s *Server) getCollection(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.svc.CollectionSummary(ctx)
	if err != nil {
		return s.fail("get_collection", err)
	}
	return jsonResult(sum)
}

func (s *Server) modelFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("modelName")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mf, err := s.svc.ModelFields(ctx, name)
	if err != nil {
		return s.fail("model_fields", err)
	}
	return jsonResult(mf)
}

func (s *Server) addNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Deck     string            `json:"deck"`
		NoteType string            `json:"noteType"`
		Fields   map[string]string `json:"fields"`
		Tags     []string          `json:"tags"`
	}
	if err := bind(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := s.svc.CreateNote(ctx, noteservice.NewNote{
		Deck:     args.Deck,
		NoteType: args.NoteType,
		Fields:   args.Fields,
		Tags:     args.Tags,
	})
	if err != nil {
		return s.fail("add_note", err)
	}
	return jsonResult(map[string]int64{"noteId": id})
}

type notesArgs struct {
	Notes []int64 `json:"notes"`
	Tags  string  `json:"tags"`
}

func (s *Server) notesInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args notesArgs
	if err := bind(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	infos, err := s.svc.NotesInfo(ctx, args.Notes)
	if err != nil {
		return s.fail("notes_info", err)
	}
	return jsonResult(infos)
}

func (s *Server) findNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids, err := s.svc.FindNotes(ctx, query)
	if err != nil {
		return s.fail("find_notes", err)
	}
	return jsonResult(ids)
}

func (s *Server) addTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args notesArgs
	if err := bind(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.svc.AddTags(ctx, args.Notes, args.Tags)
	if err != nil {
		return s.fail("add_tags", err)
	}
	return jsonResult(rep)
}

func (s *Server) removeTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args notesArgs
	if err := bind(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.svc.RemoveTags(ctx, args.Notes, args.Tags)
	if err != nil {
		return s.fail("remove_tags", err)
	}
	return jsonResult(rep)
}

func (s *Server) updateNoteTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ID   int64  `json:"id"`
		Tags string `json:"tags"`
	}
	if err := bind(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	saved, err := s.svc.UpdateNoteTags(ctx, args.ID, args.Tags)
	if err != nil {
		return s.fail("update_note_tags", err)
	}
	return jsonResult(map[string]bool{"changed": saved})
}

func (s *Server) updateNoteFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ID     int64             `json:"id"`
		Fields map[string]string `json:"fields"`
	}
	if err := bind(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	changed, err := s.svc.UpdateNoteFields(ctx, args.ID, args.Fields)
	if err != nil {
		return s.fail("update_note_fields", err)
	}
	return jsonResult(map[string]bool{"changed": changed})
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ID int64 `json:"id"`
	}
	if err := bind(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.ID == 0 {
		return mcp.NewToolResultError("required argument \"id\" not found"), nil
	}
	if err := s.svc.DeleteNote(ctx, args.ID); err != nil {
		return s.fail("delete_note", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %d", args.ID)), nil
}

func (s *Server) getAPIContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(APIContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     APIContract,
		},
	}, nil
}
