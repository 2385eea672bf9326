// Command memento-assistant runs the Memento AI assistant API: chat with
// memory, document import, workspace notes and the memory transparency panel.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/memento-assistant/internal/chat"
	"github.com/scrypster/memento-assistant/internal/config"
	"github.com/scrypster/memento-assistant/internal/importer"
	"github.com/scrypster/memento-assistant/internal/llm"
	"github.com/scrypster/memento-assistant/internal/memory"
	"github.com/scrypster/memento-assistant/internal/server"
	"github.com/scrypster/memento-assistant/internal/storage"
	"github.com/scrypster/memento-assistant/internal/storage/chromem"
	"github.com/scrypster/memento-assistant/internal/storage/postgres"
	"github.com/scrypster/memento-assistant/internal/storage/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize LLM clients
	chatClient, err := llm.NewChatClient(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to initialize chat client: %v", err)
	}
	embedder, err := llm.NewEmbeddingGenerator(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to initialize embedding generator: %v", err)
	}
	log.Printf("Chat model: %s, embedding model: %s (semantic: %v)",
		chatClient.GetModel(), embedder.GetModel(), embedder.IsSemantic())

	// Conversations and notes always live in SQLite
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	store, err := sqlite.NewStore(cfg.Storage.DataPath + "/memento.db")
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	// Select the vector backend for memories
	vectors, err := newVectorStore(cfg, store, embedder.Dimension())
	if err != nil {
		log.Fatalf("Failed to initialize vector store: %v", err)
	}
	defer func() { _ = vectors.Close() }()

	// Build services
	extractor := llm.NewMemoryExtractor(chatClient)
	memories := memory.NewService(vectors, embedder, extractor)
	refresh := chat.NewRefreshQueue(memories, cfg.Chat.RefreshQueue)
	defer refresh.Close()
	chatSvc := chat.NewService(chatClient, memories, store, store, refresh, cfg.Chat)
	imp := importer.New(store, memories, nil)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start server
	addr, _ := server.Start(ctx, cfg, chatSvc, memories, store, store, imp)
	log.Printf("Memento assistant running at http://%s", addr)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	cancel()
	// Drain pending memory extraction before exit
	refresh.Close()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// newVectorStore builds the configured vector backend. The SQLite store
// doubles as the fallback backend so a bare deployment needs no extra
// services.
func newVectorStore(cfg *config.Config, store *sqlite.Store, dimension int) (storage.VectorStore, error) {
	switch cfg.Storage.VectorBackend {
	case "postgres":
		log.Printf("Vector backend: postgres (pgvector, dimension %d)", dimension)
		return postgres.NewVectorStore(cfg.Storage.PostgresDSN, dimension)
	case "chromem":
		log.Printf("Vector backend: chromem (in-process)")
		return chromem.NewVectorStore()
	default:
		log.Printf("Vector backend: sqlite (recency fallback, no semantic ranking)")
		return store, nil
	}
}
