package main

import (
	"context"
	"flag"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"speakdocs/internal/chunker"
	"speakdocs/internal/composer"
	"speakdocs/internal/config"
	"speakdocs/internal/domain"
	"speakdocs/internal/embedding/openai"
	"speakdocs/internal/embedding/tfidf"
	"speakdocs/internal/extract"
	llmopenai "speakdocs/internal/llm/openai"
	"speakdocs/internal/logging"
	"speakdocs/internal/service"
	"speakdocs/internal/session"
	"speakdocs/internal/summarizer"
	"speakdocs/internal/tui"
	"speakdocs/internal/vectorstore/chromem"
	"speakdocs/internal/vectorstore/memory"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/speakdocs/config.yaml if not provided)")
	flag.Parse()
	inputs := flag.Args()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Assemble components. The embedder is a factory: each document set
	// gets its own prepared instance, kept with the session's index.
	var newEmbedder func() (domain.Embedder, error)
	switch cfg.Embedder.Type {
	case "tfidf", "":
		newEmbedder = func() (domain.Embedder, error) { return tfidf.NewEmbedder(), nil }
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			log.Fatalf("openai embedder config missing")
		}
		ecfg := openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		}
		// Fail fast at startup on a missing API key.
		if _, err := openai.NewClient(ecfg); err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		newEmbedder = func() (domain.Embedder, error) { return openai.NewClient(ecfg) }
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
	}

	completer, err := llmopenai.NewClient(llmopenai.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKeyEnv:   cfg.LLM.APIKeyEnv,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
	if err != nil {
		log.Fatalf("llm init failed: %v", err)
	}

	var newStore func() (domain.VectorStore, error)
	switch cfg.VectorStore.Type {
	case "memory", "":
		newStore = func() (domain.VectorStore, error) { return memory.NewStore(), nil }
	case "chromem":
		ccfg := chromem.Config{}
		if cfg.VectorStore.Chromem != nil {
			ccfg = chromem.Config{
				Path:       cfg.VectorStore.Chromem.Path,
				Collection: cfg.VectorStore.Chromem.Collection,
				Compress:   cfg.VectorStore.Chromem.Compress,
			}
		}
		newStore = func() (domain.VectorStore, error) { return chromem.NewStore(ccfg) }
	default:
		log.Fatalf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	strategy, err := composer.ParseStrategy(cfg.Composer.Strategy)
	if err != nil {
		log.Fatalf("invalid composer strategy: %v", err)
	}

	sessions := session.NewManager(cfg.Session.HistoryTurns, time.Duration(cfg.Session.IdleTimeoutSecs)*time.Second)
	pipeline := service.NewPipeline(service.Params{
		Chunker:          chunker.NewWindowChunker(cfg.Chunker.Size, cfg.Chunker.Overlap),
		NewEmbedder:      newEmbedder,
		Completer:        completer,
		Strategy:         strategy,
		NewStore:         newStore,
		Sessions:         sessions,
		Summarizer:       summarizer.NewFrequencySummarizer(),
		SummarySentences: cfg.Summarizer.MaxSentences,
		TopK:             cfg.Retriever.TopK,
		Logger:           logger,
	})

	extractor := extract.NewFileExtractor()
	sessionID := uuid.NewString()

	var overview string
	if len(inputs) > 0 {
		docs, err := extractor.Extract(inputs)
		if err != nil {
			log.Fatalf("upload failed: %v", err)
		}
		overview, err = pipeline.Ingest(context.Background(), sessionID, docs)
		if err != nil {
			log.Fatalf("ingest failed: %v", err)
		}
		logger.Info("startup ingest complete", zap.Int("documents", len(docs)))
	}

	m := tui.New(pipeline, extractor, sessionID, overview)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}
