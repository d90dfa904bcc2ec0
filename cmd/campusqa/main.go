// Command campusqa is the operator tool for the campus question answering
// service: it ingests documents, asks questions and mints session tokens.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/campusconnect/campusqa/internal/app"
	"github.com/campusconnect/campusqa/internal/config"
	"github.com/campusconnect/campusqa/internal/server"
	"github.com/campusconnect/campusqa/internal/service"
	"github.com/campusconnect/campusqa/internal/vectorstore"
)

const usage = `usage: campusqa <command> [flags]

commands:
  ingest   index .txt and .md documents from a directory
  ask      answer a question locally or through a running server
  token    mint a session token for development
  export   write a snapshot of the embedded index
`

var (
	heading = color.New(color.FgCyan, color.Bold)
	dim     = color.New(color.Faint)
	warn    = color.New(color.FgYellow)
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "ingest":
		err = runIngest(ctx, os.Args[2:])
	case "ask":
		err = runAsk(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:])
	case "export":
		err = runExport(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runIngest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	dir := fs.String("dir", "", "directory of documents (default AUTO_INGEST_DIR)")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)

	cfg, err := config.Parse()
	if err != nil {
		return err
	}
	if *dir == "" {
		*dir = cfg.AutoIngestDir
	}
	if *dir == "" {
		return errors.New("-dir is required when AUTO_INGEST_DIR is unset")
	}

	a, err := app.NewIndexOnly(ctx, cfg, newLogger(*verbose))
	if err != nil {
		return err
	}
	defer a.Close()

	pipeline, err := a.NewPipeline()
	if err != nil {
		return err
	}
	stats, err := pipeline.IngestDir(ctx, *dir)
	if err != nil {
		return err
	}

	heading.Println("Ingestion complete")
	fmt.Printf("  files:    %d\n", stats.Files)
	fmt.Printf("  pages:    %d\n", stats.Pages)
	fmt.Printf("  passages: %d\n", stats.Passages)
	dim.Printf("  took %s\n", stats.Duration.Round(time.Millisecond))
	return nil
}

func runAsk(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	q := fs.String("q", "", "question to ask")
	topK := fs.Int("top-k", 0, "number of sources (0 uses DEFAULT_TOP_K)")
	addr := fs.String("addr", "", "gRPC address of a running server; empty answers locally")
	token := fs.String("token", "", "session token sent to the server")
	summary := fs.Bool("summary", false, "summarize the matching passages instead of answering (local only)")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)

	question := *q
	if question == "" {
		question = strings.Join(fs.Args(), " ")
	}
	if strings.TrimSpace(question) == "" {
		return errors.New("-q is required")
	}

	if *summary {
		if *addr != "" {
			return errors.New("-summary runs locally and cannot be combined with -addr")
		}
		text, err := summarizeLocal(ctx, question, *topK, newLogger(*verbose))
		if err != nil {
			return err
		}
		heading.Println("Summary")
		fmt.Println(text)
		return nil
	}

	var (
		result *service.AnswerResult
		err    error
	)
	if *addr != "" {
		result, err = askRemote(ctx, *addr, *token, question, *topK)
	} else {
		result, err = askLocal(ctx, question, *topK, newLogger(*verbose))
	}
	if err != nil {
		return err
	}

	printAnswer(os.Stdout, result)
	return nil
}

func askLocal(ctx context.Context, question string, topK int, logger *slog.Logger) (*service.AnswerResult, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	if err := a.EnsureIngested(ctx); err != nil {
		return nil, err
	}
	return a.Service.Answer(ctx, question, topK)
}

func summarizeLocal(ctx context.Context, question string, topK int, logger *slog.Logger) (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	defer a.Close()

	if err := a.EnsureIngested(ctx); err != nil {
		return "", err
	}
	return a.Service.Summarize(ctx, question, topK)
}

func askRemote(ctx context.Context, addr, token, question string, topK int) (*service.AnswerResult, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	}
	return server.NewQAClient(conn).Ask(ctx, &server.AskRequest{Query: question, TopK: topK})
}

func printAnswer(w io.Writer, r *service.AnswerResult) {
	heading.Fprintln(w, "Answer")
	fmt.Fprintln(w, r.Answer)
	fmt.Fprintln(w)

	level := color.New(color.FgGreen)
	switch r.Confidence.Level {
	case "medium":
		level = warn
	case "low":
		level = color.New(color.FgRed)
	}
	fmt.Fprint(w, "Confidence: ")
	level.Fprintf(w, "%s (%.2f)\n", r.Confidence.Level, r.Confidence.Score)
	if r.Metadata.Degraded {
		warn.Fprintln(w, "generation failed; answer degraded")
	}

	if len(r.Sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	heading.Fprintf(w, "Sources (%d)\n", r.SourcesUsed)
	for i, s := range r.Sources {
		loc := s.SourceFile
		if s.Page > 0 {
			loc = fmt.Sprintf("%s p.%d", loc, s.Page)
		}
		fmt.Fprintf(w, "%d. %s ", i+1, loc)
		dim.Fprintf(w, "[rerank %.2f, similarity %.2f]\n", s.RerankScore, s.SimilarityScore)
		dim.Fprintf(w, "   %s\n", s.ContentPreview)
	}
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	email := fs.String("email", "", "email claim")
	ttl := fs.Duration("ttl", 0, "token lifetime (default AUTH_JWT_EXPIRY)")
	fs.Parse(args)

	if *email == "" {
		return errors.New("-email is required")
	}

	cfg, err := config.Parse()
	if err != nil {
		return err
	}
	manager := app.AuthManager(cfg)
	if manager == nil {
		return errors.New("AUTH_JWT_SECRET is not set")
	}

	expiry := *ttl
	if expiry == 0 {
		expiry = cfg.JWTExpiry
	}
	token, err := manager.GenerateTokenWithExpiry(*email, expiry)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "campus_documents.gob.gz", "snapshot file")
	fs.Parse(args)

	cfg, err := config.Parse()
	if err != nil {
		return err
	}
	if cfg.IndexBackend != "chromem" {
		return fmt.Errorf("export supports the chromem backend only, not %s", cfg.IndexBackend)
	}

	a, err := app.NewIndexOnly(ctx, cfg, newLogger(false))
	if err != nil {
		return err
	}
	defer a.Close()

	store, ok := a.Index.(*vectorstore.ChromemStore)
	if !ok {
		return errors.New("index is not an embedded chromem store")
	}
	if err := store.Export(*out, strings.HasSuffix(*out, ".gz")); err != nil {
		return err
	}

	heading.Println("Exported index")
	fmt.Printf("  %s\n", *out)
	return nil
}
