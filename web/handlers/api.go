package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/memento-assistant/internal/chat"
	"github.com/scrypster/memento-assistant/internal/config"
	"github.com/scrypster/memento-assistant/internal/importer"
	"github.com/scrypster/memento-assistant/internal/llm"
	"github.com/scrypster/memento-assistant/internal/memory"
	"github.com/scrypster/memento-assistant/internal/storage"
	"github.com/scrypster/memento-assistant/pkg/types"
)

// maxUploadSize caps document uploads at 10 MB.
const maxUploadSize = 10 << 20

// defaultWorkspace scopes requests that don't name a workspace.
const defaultWorkspace = "default"

// APIHandlers holds the services the REST API dispatches to.
type APIHandlers struct {
	cfg           *config.Config
	chat          *chat.Service
	memories      *memory.Service
	conversations storage.ConversationStore
	notes         storage.NoteStore
	importer      *importer.Importer
	hub           *WebSocketHub
}

// NewAPIHandlers creates the API handler set. The hub may be nil, in which
// case no events are broadcast.
func NewAPIHandlers(
	cfg *config.Config,
	chatSvc *chat.Service,
	memories *memory.Service,
	conversations storage.ConversationStore,
	notes storage.NoteStore,
	imp *importer.Importer,
	hub *WebSocketHub,
) *APIHandlers {
	return &APIHandlers{
		cfg:           cfg,
		chat:          chatSvc,
		memories:      memories,
		conversations: conversations,
		notes:         notes,
		importer:      imp,
		hub:           hub,
	}
}

// Chat handles POST /api/chat.
func (h *APIHandlers) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}
	if req.Message == "" {
		respondError(w, http.StatusBadRequest, "message is required", nil)
		return
	}
	workspaceID := req.WorkspaceID
	if workspaceID == "" {
		workspaceID = defaultWorkspace
	}

	result, err := h.chat.Chat(r.Context(), userID, workspaceID, req.ConversationID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrCircuitOpen):
			respondError(w, http.StatusServiceUnavailable, "chat model temporarily unavailable", err)
		case errors.Is(err, llm.ErrProviderUnavailable):
			respondError(w, http.StatusBadGateway, "chat model unavailable", err)
		case errors.Is(err, storage.ErrStoreUnavailable):
			respondError(w, http.StatusServiceUnavailable, "storage unavailable", err)
		case errors.Is(err, storage.ErrInvalidInput):
			respondError(w, http.StatusBadRequest, "invalid request", err)
		case errors.Is(err, storage.ErrNotFound):
			respondError(w, http.StatusNotFound, "conversation not found", err)
		default:
			respondError(w, http.StatusInternalServerError, "chat failed", err)
		}
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(Event{Type: "chat.message", Data: map[string]interface{}{
			"conversation_id": result.ConversationID,
			"workspace_id":    workspaceID,
		}})
	}

	respondJSON(w, http.StatusOK, ChatResponse{
		Message:        result.Message,
		ConversationID: result.ConversationID,
	})
}

// ListConversations handles GET /api/conversations.
func (h *APIHandlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requestUser(w, r); !ok {
		return
	}

	workspaceID := queryWorkspace(r)
	limit := parseInt(r.URL.Query().Get("limit"), storage.DefaultQueryLimit)

	convs, err := h.conversations.ListConversations(r.Context(), workspaceID, limit)
	if err != nil {
		respondError(w, storageStatus(err), "failed to list conversations", err)
		return
	}
	respondJSON(w, http.StatusOK, ConversationsResponse{Conversations: convs, Count: len(convs)})
}

// GetConversation handles GET /api/conversations/{id}. The response includes
// the conversation's messages, oldest first.
func (h *APIHandlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.chat.CheckConversationAccess(r.Context(), userID, id); err != nil {
		respondError(w, storageStatus(err), "failed to get conversation", err)
		return
	}
	conv, err := h.conversations.GetConversation(r.Context(), id)
	if err != nil {
		respondError(w, storageStatus(err), "failed to get conversation", err)
		return
	}

	msgs, err := h.conversations.GetMessages(r.Context(), id)
	if err != nil {
		respondError(w, storageStatus(err), "failed to load messages", err)
		return
	}
	conv.Messages = make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		conv.Messages = append(conv.Messages, *m)
	}

	respondJSON(w, http.StatusOK, conv)
}

// DeleteConversation handles DELETE /api/conversations/{id}.
func (h *APIHandlers) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.chat.CheckConversationAccess(r.Context(), userID, id); err != nil {
		respondError(w, storageStatus(err), "failed to delete conversation", err)
		return
	}
	if err := h.conversations.DeleteConversation(r.Context(), id); err != nil {
		respondError(w, storageStatus(err), "failed to delete conversation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMemories handles GET /api/memories. This is the transparency panel:
// everything the assistant currently remembers about the requesting user in
// the workspace.
func (h *APIHandlers) ListMemories(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	workspaceID := queryWorkspace(r)
	limit := parseInt(r.URL.Query().Get("limit"), 0)

	memories, err := h.memories.ListMemories(r.Context(), userID, workspaceID, limit)
	if err != nil {
		respondError(w, storageStatus(err), "failed to list memories", err)
		return
	}
	respondJSON(w, http.StatusOK, MemoriesResponse{Memories: memories, Count: len(memories)})
}

// SearchMemories handles GET /api/memories/search.
func (h *APIHandlers) SearchMemories(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required", nil)
		return
	}
	workspaceID := queryWorkspace(r)
	limit := parseInt(r.URL.Query().Get("limit"), 0)

	memories, err := h.memories.SearchMemories(r.Context(), userID, workspaceID, query, limit)
	if err != nil {
		switch {
		case errors.Is(err, llm.ErrCircuitOpen), errors.Is(err, llm.ErrProviderUnavailable):
			respondError(w, http.StatusServiceUnavailable, "embedding provider unavailable", err)
		default:
			respondError(w, storageStatus(err), "failed to search memories", err)
		}
		return
	}
	respondJSON(w, http.StatusOK, MemoriesResponse{Memories: memories, Count: len(memories)})
}

// DeleteMemory handles DELETE /api/memories/{id}. Users can only delete
// their own memories.
func (h *APIHandlers) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.memories.DeleteMemory(r.Context(), userID, id); err != nil {
		respondError(w, storageStatus(err), "failed to delete memory", err)
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(Event{Type: "memory.deleted", Data: map[string]interface{}{"id": id}})
	}
	w.WriteHeader(http.StatusNoContent)
}

// Import handles POST /api/import. Accepts a multipart form with a "file"
// field holding a .txt, .md, .html or .docx document.
func (h *APIHandlers) Import(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file field is required", err)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload", err)
		return
	}
	if len(data) > maxUploadSize {
		respondError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d bytes", maxUploadSize), nil)
		return
	}

	workspaceID := r.FormValue("workspace_id")
	if workspaceID == "" {
		workspaceID = defaultWorkspace
	}

	result, err := h.importer.Import(r.Context(), userID, workspaceID, header.Filename, data)
	if err != nil {
		if errors.Is(err, importer.ErrUnsupportedType) {
			respondError(w, http.StatusBadRequest, "unsupported file type", err)
			return
		}
		respondError(w, storageStatus(err), "import failed", err)
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(Event{Type: "note.imported", Data: map[string]interface{}{
			"note_id":      result.NoteID,
			"title":        result.Title,
			"workspace_id": workspaceID,
		}})
	}

	respondJSON(w, http.StatusCreated, ImportResponse{NoteID: result.NoteID, Title: result.Title})
}

// CreateNote handles POST /api/notes.
func (h *APIHandlers) CreateNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requestUser(w, r)
	if !ok {
		return
	}

	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	now := time.Now().UTC()
	note := &types.Note{
		ID:          uuid.New().String(),
		WorkspaceID: queryWorkspace(r),
		Title:       "Untitled",
		Content:     req.Content,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Title != nil && *req.Title != "" {
		note.Title = *req.Title
	}
	if req.ParentID != nil {
		note.ParentID = *req.ParentID
	}
	if req.Icon != nil {
		note.Icon = *req.Icon
	}
	if req.CoverURL != nil {
		note.CoverURL = *req.CoverURL
	}

	if err := h.notes.CreateNote(r.Context(), note); err != nil {
		respondError(w, storageStatus(err), "failed to create note", err)
		return
	}
	respondJSON(w, http.StatusCreated, note)
}

// ListNotes handles GET /api/notes. With a parent_id parameter it returns a
// note's direct children instead of the recency-ordered workspace listing.
func (h *APIHandlers) ListNotes(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requestUser(w, r); !ok {
		return
	}

	var notes []*types.Note
	var err error
	if parentID := r.URL.Query().Get("parent_id"); parentID != "" {
		notes, err = h.notes.Children(r.Context(), queryWorkspace(r), parentID)
	} else {
		limit := parseInt(r.URL.Query().Get("limit"), storage.DefaultQueryLimit)
		notes, err = h.notes.ListNotes(r.Context(), queryWorkspace(r), limit)
	}
	if err != nil {
		respondError(w, storageStatus(err), "failed to list notes", err)
		return
	}
	respondJSON(w, http.StatusOK, NotesResponse{Notes: notes, Count: len(notes)})
}

// GetNote handles GET /api/notes/{id}.
func (h *APIHandlers) GetNote(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requestUser(w, r); !ok {
		return
	}

	note, err := h.notes.GetNote(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, storageStatus(err), "failed to get note", err)
		return
	}
	respondJSON(w, http.StatusOK, note)
}

// UpdateNote handles PUT /api/notes/{id}. Only the fields present in the
// body are changed; the plain-text projection is recomputed on every write.
// A parent_id field reparents the note (empty string moves it to the root).
func (h *APIHandlers) UpdateNote(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requestUser(w, r); !ok {
		return
	}

	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	note, err := h.notes.GetNote(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, storageStatus(err), "failed to get note", err)
		return
	}

	if req.Title != nil {
		note.Title = *req.Title
	}
	if req.ParentID != nil {
		note.ParentID = *req.ParentID
	}
	if req.Icon != nil {
		note.Icon = *req.Icon
	}
	if req.CoverURL != nil {
		note.CoverURL = *req.CoverURL
	}
	if req.Content != nil {
		note.Content = req.Content
	}

	if err := h.notes.UpdateNote(r.Context(), note); err != nil {
		respondError(w, storageStatus(err), "failed to update note", err)
		return
	}
	respondJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}. Memories extracted from the
// note are intentionally left in place; they reference the note by ID only.
func (h *APIHandlers) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requestUser(w, r); !ok {
		return
	}

	if err := h.notes.DeleteNote(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, storageStatus(err), "failed to delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchNotes handles GET /api/notes/search.
func (h *APIHandlers) SearchNotes(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requestUser(w, r); !ok {
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required", nil)
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), storage.DefaultQueryLimit)

	notes, err := h.notes.SearchNotes(r.Context(), queryWorkspace(r), query, limit)
	if err != nil {
		respondError(w, storageStatus(err), "failed to search notes", err)
		return
	}
	respondJSON(w, http.StatusOK, NotesResponse{Notes: notes, Count: len(notes)})
}

// requestUser resolves the acting user from the X-User-ID header. In
// development mode a missing header falls back to the configured default
// user; in production it's a client error. Writes the error response itself
// and returns ok=false when no user can be resolved.
func (h *APIHandlers) requestUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" && h.cfg.Security.SecurityMode == config.SecurityModeDevelopment {
		userID = h.cfg.Security.DefaultUser
	}
	if userID == "" {
		respondError(w, http.StatusBadRequest, "X-User-ID header is required", nil)
		return "", false
	}
	return userID, true
}

// queryWorkspace returns the workspace_id query parameter or the default.
func queryWorkspace(r *http.Request) string {
	if ws := r.URL.Query().Get("workspace_id"); ws != "" {
		return ws
	}
	return defaultWorkspace
}

// storageStatus maps storage sentinel errors to HTTP status codes.
func storageStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// parseInt parses an integer query parameter, returning the default on
// empty or malformed input.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// If encoding fails, log but don't try to write another response
		// (headers already sent)
		fmt.Printf("failed to encode JSON response: %v\n", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}
