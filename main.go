package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fabfab/knowledge-copilot/api"
	"github.com/fabfab/knowledge-copilot/config"
	"github.com/fabfab/knowledge-copilot/database"
	"github.com/fabfab/knowledge-copilot/embeddings"
	"github.com/fabfab/knowledge-copilot/index"
	"github.com/fabfab/knowledge-copilot/ingestion"
	"github.com/fabfab/knowledge-copilot/knowledge"
	"github.com/fabfab/knowledge-copilot/llm"
	"github.com/fabfab/knowledge-copilot/rag"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "query":
		queryCmd(cfg, logger, os.Args[2:])
	case "analyze":
		analyzeCmd(cfg, logger, os.Args[2:])
	case "status":
		statusCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// services is the fully wired application: one embedder, one index,
// one provider registry, and the pipelines built on top of them.
type services struct {
	api.Services
	cleanup []func()
}

func (s *services) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

func buildServices(ctx context.Context, cfg config.Config, logger *log.Logger) (*services, error) {
	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}

	svcs := &services{}

	var idx index.Index
	switch cfg.IndexBackend {
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		if err := database.EnsureSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		idx = index.NewPostgres(pool, embedder)
	default:
		idx = index.NewMemory(embedder)
	}
	svcs.cleanup = append(svcs.cleanup, idx.Close)

	registry, err := llm.NewRegistry(cfg)
	if err != nil {
		svcs.close()
		return nil, fmt.Errorf("llm setup: %w", err)
	}

	var (
		graph       *knowledge.Graph
		sourceGraph rag.SourceGraph
	)
	if cfg.Neo4jURI != "" {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			svcs.close()
			return nil, fmt.Errorf("neo4j connection: %w", err)
		}
		svcs.cleanup = append(svcs.cleanup, func() { _ = driver.Close(ctx) })
		graph = knowledge.NewGraph(driver)
		sourceGraph = rag.NewNeo4jSourceGraph(driver)
	}

	chunker, err := ingestion.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		svcs.close()
		return nil, err
	}

	svcs.Services = api.Services{
		Index:    idx,
		Ingest:   ingestion.NewService(idx, chunker, graph, logger),
		RAG:      rag.NewService(rag.NewRetriever(idx, embedder), registry, sourceGraph, logger),
		Analyzer: rag.NewAnalyzer(registry, cfg.MaxAnalyzeChars, logger),
		Registry: registry,
		Monitor:  llm.NewMonitor(registry, cfg.StatusTTL),
		Graph:    graph,
	}
	return svcs, nil
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.Addr, "listen address for the HTTP API")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}
	defer svcs.close()

	server := &http.Server{
		Addr:              *addr,
		Handler:           api.New(cfg, svcs.Services, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("listening on %s (index backend: %s)", *addr, cfg.IndexBackend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("serve: %v", err)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dataDir := flags.String("dir", cfg.DataDir, "path to directory containing documents")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}
	defer svcs.close()

	logger.Printf("ingesting documents from %s using %s/%s embeddings",
		*dataDir, strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model)

	report, err := svcs.Ingest.IngestDirectory(ctx, *dataDir)
	if err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}

	logger.Printf("indexed %d documents (%d chunks)", report.DocumentsIndexed, report.ChunksIndexed)
	for _, failure := range report.Failures {
		logger.Printf("failed: %s: %s", failure.Path, failure.Error)
	}
}

func queryCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("query", flag.ExitOnError)
	question := flags.String("question", "", "question to ask against the knowledge base")
	k := flags.Int("k", 3, "number of context chunks to retrieve")
	provider := flags.String("provider", "", "generation provider (defaults to the configured one)")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse query flags: %v", err)
	}

	if strings.TrimSpace(*question) == "" {
		fmt.Print("Enter your question: ")
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			*question = scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logger.Fatalf("read question: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}
	defer svcs.close()

	answer, err := svcs.RAG.Answer(ctx, *question, *k, *provider)
	if err != nil {
		logger.Fatalf("query failed: %v", err)
	}

	fmt.Println(answer.Content)
	if len(answer.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for i, source := range answer.Sources {
			fmt.Printf("%d. %s chunk %d (score %.3f)\n", i+1, source.Source, source.ChunkIndex, source.Score)
			for _, related := range source.Related {
				fmt.Printf("   related: %s", related.Source)
				if related.Folder != "" {
					fmt.Printf(" (%s)", related.Folder)
				}
				fmt.Println()
			}
		}

		if followUps := svcs.RAG.FollowUps(ctx, *question, answer.Content, *provider); len(followUps) > 0 {
			fmt.Println()
			fmt.Println("Follow-up questions:")
			for _, q := range followUps {
				fmt.Printf("  - %s\n", q)
			}
		}
	}
}

func analyzeCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("analyze", flag.ExitOnError)
	file := flags.String("file", "", "file to analyze (reads stdin when omitted)")
	provider := flags.String("provider", "", "generation provider (defaults to the configured one)")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse analyze flags: %v", err)
	}

	var text string
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			logger.Fatalf("read file: %v", err)
		}
		text = string(data)
	} else {
		var sb strings.Builder
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			sb.WriteString(scanner.Text())
			sb.WriteString("\n")
		}
		if err := scanner.Err(); err != nil {
			logger.Fatalf("read stdin: %v", err)
		}
		text = sb.String()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}
	defer svcs.close()

	analysis, err := svcs.Analyzer.Analyze(ctx, text, *provider)
	if err != nil {
		logger.Fatalf("analyze failed: %v", err)
	}

	fmt.Printf("Summary: %s\n", analysis.Summary)
	if len(analysis.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(analysis.Tags, ", "))
	}
	fmt.Printf("Complexity: %s\n", analysis.Complexity)
}

func statusCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("status", flag.ExitOnError)
	provider := flags.String("provider", "", "provider to probe (defaults to the configured one)")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse status flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}
	defer svcs.close()

	status, err := svcs.Monitor.Refresh(ctx, *provider)
	if err != nil {
		logger.Fatalf("status check failed: %v", err)
	}

	fmt.Printf("Provider: %s\n", status.Provider)
	fmt.Printf("Status:   %s\n", status.State)
	if status.Model != "" {
		fmt.Printf("Model:    %s\n", status.Model)
	}
	if status.Detail != "" {
		fmt.Printf("Details:  %s\n", status.Detail)
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete all indexed documents. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("service setup: %v", err)
	}
	defer svcs.close()

	if err := svcs.Index.Clear(ctx); err != nil {
		logger.Fatalf("clear index: %v", err)
	}
	logger.Println("index cleared")

	if svcs.Graph != nil {
		if err := svcs.Graph.Clear(ctx); err != nil {
			logger.Fatalf("clear graph: %v", err)
		}
		logger.Println("knowledge graph cleared")
	}
}

func printUsage() {
	fmt.Println("Usage: knowledge-copilot <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP API")
	fmt.Println("  ingest   Index documents from a directory (use --dir to override)")
	fmt.Println("  query    Ask a question against the knowledge base")
	fmt.Println("  analyze  Summarize and tag a text passage")
	fmt.Println("  status   Probe the generation backend")
	fmt.Println("  clear    Remove all indexed documents")
}
