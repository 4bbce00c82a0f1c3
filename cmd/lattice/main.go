// Package main is the Lattice CLI entry point.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/latticenotes/lattice/internal/config"
	"github.com/latticenotes/lattice/internal/embedding"
	"github.com/latticenotes/lattice/internal/indexer"
	"github.com/latticenotes/lattice/internal/keyword"
	"github.com/latticenotes/lattice/internal/linker"
	"github.com/latticenotes/lattice/internal/models"
	"github.com/latticenotes/lattice/internal/notes"
	"github.com/latticenotes/lattice/internal/search"
	"github.com/latticenotes/lattice/internal/server"
	"github.com/latticenotes/lattice/internal/similarity"
	"github.com/latticenotes/lattice/internal/storage"
	"github.com/latticenotes/lattice/internal/vector"
	"github.com/latticenotes/lattice/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/lattice/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used instead.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "add":
		runAdd()
	case "get":
		runGet()
	case "list":
		runList()
	case "delete":
		runDelete()
	case "search":
		runSearch()
	case "links":
		runLinks()
	case "graph":
		runGraph()
	case "reindex":
		runReindex()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("lattice version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	components.Indexer.Start(workerCtx)
	if err := components.Indexer.LoadVectors(workerCtx); err != nil {
		logger.Fatal("Failed to load vector index", zap.Error(err))
	}

	srv := server.NewServer(
		components.Notes,
		components.Engine,
		components.Linker,
		components.Similarity,
		components.Indexer,
		components.Storage,
		components.VectorIndex,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	components.Indexer.Close()
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	file := fs.String("file", "", "read content from file (default: stdin)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: lattice add [flags] <title>")
		os.Exit(1)
	}
	title := strings.TrimSpace(strings.Join(fs.Args(), " "))

	content, err := readContent(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read content: %v\n", err)
		os.Exit(1)
	}

	var note models.Note
	if err := postJSON(*serverURL+"/api/v1/notes", &models.NoteInput{Title: title, Content: content}, &note); err != nil {
		fmt.Fprintf(os.Stderr, "Add failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Note created: %s\n", note.ID)
}

func runGet() {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: lattice get [flags] <note-id>")
		os.Exit(1)
	}
	var note models.Note
	if err := getJSON(*serverURL+"/api/v1/notes/"+url.PathEscape(fs.Arg(0)), &note); err != nil {
		fmt.Fprintf(os.Stderr, "Get failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n\n%s\n", color.New(color.Bold).Sprint(note.Title), note.Content)
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	limit := fs.Int("limit", 50, "number of notes")
	sort := fs.String("sort", "updated_at", "sort order: updated_at, created_at, or title")
	_ = fs.Parse(os.Args[2:])

	var list models.NoteList
	endpoint := fmt.Sprintf("%s/api/v1/notes?limit=%d&sort=%s", *serverURL, *limit, url.QueryEscape(*sort))
	if err := getJSON(endpoint, &list); err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	for _, n := range list.Notes {
		fmt.Printf("%s  %s\n    %s\n", n.ID, color.New(color.Bold).Sprint(n.Title), n.Snippet)
	}
	fmt.Printf("\n%d of %d note(s)\n", len(list.Notes), list.Total)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: lattice delete [flags] <note-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)
	req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/notes/"+url.PathEscape(id), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Delete failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Printf("Note deleted: %s\n", id)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	mode := fs.String("mode", "hybrid", "search mode: lexical, semantic, or hybrid")
	limit := fs.Int("limit", 10, "number of results")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: lattice search [flags] <query>")
		os.Exit(1)
	}
	queryStr := strings.TrimSpace(strings.Join(fs.Args(), " "))

	var response models.SearchResponse
	query := &models.SearchQuery{Query: queryStr, Mode: models.SearchMode(*mode), Limit: *limit}
	if err := postJSON(*serverURL+"/api/v1/search", query, &response); err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(&response)
		return
	}
	if response.Degraded {
		color.Yellow("semantic retrieval unavailable, lexical results only")
	}
	for i, r := range response.Results {
		fmt.Printf("%2d. %s  %s\n    %s\n    score=%.4f  id=%s\n",
			i+1,
			color.New(color.Bold).Sprint(r.Title),
			color.CyanString("[%s]", r.MatchType),
			r.Snippet,
			r.Score,
			r.NoteID,
		)
	}
	fmt.Printf("\n%d result(s) in %dms\n", len(response.Results), response.QueryTime)
}

func runLinks() {
	fs := flag.NewFlagSet("links", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	file := fs.String("file", "", "read content from file (default: stdin)")
	exclude := fs.String("exclude", "", "note id to exclude from results")
	threshold := fs.Float64("threshold", 0, "minimum similarity (0 = server default)")
	limit := fs.Int("limit", 0, "maximum links (0 = server default)")
	_ = fs.Parse(os.Args[2:])

	content, err := readContent(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read content: %v\n", err)
		os.Exit(1)
	}

	var out struct {
		Links []*models.LatentLink `json:"links"`
	}
	req := map[string]interface{}{
		"content": content, "exclude_id": *exclude, "threshold": *threshold, "limit": *limit,
	}
	if err := postJSON(*serverURL+"/api/v1/links", req, &out); err != nil {
		fmt.Fprintf(os.Stderr, "Links failed: %v\n", err)
		os.Exit(1)
	}
	for _, l := range out.Links {
		fmt.Printf("%.3f  %s\n      %s\n", l.Similarity, color.New(color.Bold).Sprint(l.Title), l.Snippet)
	}
	fmt.Printf("\n%d link(s)\n", len(out.Links))
}

func runGraph() {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	center := fs.String("center", "", "restrict to the cluster of this note id")
	threshold := fs.Float64("threshold", 0, "minimum edge similarity (0 = stored threshold)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	endpoint := *serverURL + "/api/v1/graph"
	params := url.Values{}
	if *center != "" {
		params.Set("center", *center)
	}
	if *threshold > 0 {
		params.Set("threshold", fmt.Sprintf("%g", *threshold))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var graph models.GraphData
	if err := getJSON(endpoint, &graph); err != nil {
		fmt.Fprintf(os.Stderr, "Graph failed: %v\n", err)
		os.Exit(1)
	}
	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(&graph)
		return
	}
	for _, n := range graph.Nodes {
		fmt.Printf("cluster %d  %s  %s\n", n.Cluster, n.ID, n.Title)
	}
	fmt.Printf("\n%d node(s), %d edge(s)\n", len(graph.Nodes), len(graph.Edges))
}

// runReindex streams progress events from the server and renders a progress
// bar while the rebuild runs.
func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Post(*serverURL+"/api/v1/reindex", "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Reindex failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}

	var bar *progressbar.ProgressBar
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			switch event {
			case "progress":
				var p models.ReindexProgress
				if err := json.Unmarshal([]byte(data), &p); err != nil {
					continue
				}
				if bar == nil {
					bar = progressbar.NewOptions(p.Total,
						progressbar.OptionSetDescription("reindexing"),
						progressbar.OptionShowCount(),
						progressbar.OptionSetWidth(30),
					)
				}
				_ = bar.Set(p.Processed)
				bar.Describe(utils.Truncate(p.CurrentTitle, 40))
			case "done":
				var d struct {
					Processed int `json:"processed"`
				}
				_ = json.Unmarshal([]byte(data), &d)
				if bar != nil {
					_ = bar.Finish()
					fmt.Println()
				}
				color.Green("Reindexed %d note(s)", d.Processed)
				return
			case "error":
				var e struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal([]byte(data), &e)
				fmt.Println()
				color.Red("Reindex failed: %s", e.Error)
				os.Exit(1)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Stream failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status map[string]interface{}
	if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status)
		return
	}
	for _, key := range []string{"notes", "embeddings", "pending_notes", "similarity_edges", "vector_index_size", "reindexing"} {
		if v, ok := status[key]; ok {
			fmt.Printf("%-20s %v\n", key+":", v)
		}
	}
}

// readContent reads note content from file, or stdin when file is empty.
func readContent(file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func postJSON(endpoint string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func getJSON(endpoint string, out interface{}) error {
	resp, err := http.Get(endpoint)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  *vector.Index
	KeywordIndex keyword.Index
	Similarity   *similarity.Cache
	Indexer      *indexer.Indexer
	Engine       *search.Engine
	Linker       *linker.Linker
	Notes        *notes.Service
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.ModelVersion,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
	)
	if err != nil {
		logger.Warn("ONNX model unavailable, using mock embedder", zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = onnxEmbedder
	}

	vectorIndex, err := vector.NewIndex(cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	sim := similarity.NewCache(store, cfg.Similarity.StoreThreshold, logger)
	idx := indexer.NewIndexer(store, embedder, vectorIndex, keywordIndex, sim, &cfg.Indexer, logger)
	engine := search.NewEngine(store, embedder, vectorIndex, keywordIndex, &cfg.Search, logger)
	lnk := linker.NewLinker(store, embedder, vectorIndex, &cfg.Linker, logger)
	noteSvc := notes.NewService(store, idx, logger)

	return &Components{
		Storage:      store,
		Embedder:     embedder,
		VectorIndex:  vectorIndex,
		KeywordIndex: keywordIndex,
		Similarity:   sim,
		Indexer:      idx,
		Engine:       engine,
		Linker:       lnk,
		Notes:        noteSvc,
	}, nil
}

func printUsage() {
	fmt.Println(`lattice - Local notes with hybrid search and link discovery

Usage:
  lattice server [flags]            Start the HTTP server
  lattice add [flags] <title>       Create a note (content from stdin or --file)
  lattice get [flags] <id>          Show a note
  lattice list [flags]              List notes
  lattice delete [flags] <id>       Delete a note
  lattice search [flags] <query>    Search notes
  lattice links [flags]             Find latent links for content (stdin or --file)
  lattice graph [flags]             Show the similarity graph
  lattice reindex [flags]           Rebuild all embeddings and indices
  lattice status [flags]            Show corpus and index status
  lattice version                   Show version
  lattice help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/lattice/config.yaml)
  --debug            Enable debug logging

Common Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (search, graph, status)

Examples:
  lattice server
  lattice add "Meeting notes" --file meeting.md
  lattice search --mode semantic "distributed consensus"
  lattice links --exclude note-id < draft.md
  lattice graph --threshold 0.7
  lattice reindex`)
}
