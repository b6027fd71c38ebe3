package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/pkg/logger"
	"github.com/xhad/mrag/pkg/pipeline"
	"github.com/xhad/mrag/server"
	"gopkg.in/yaml.v3"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := &http.Server{
			Addr: ":" + cfg.Server.Port,
			Handler: server.NewServer(a.svc, server.Config{
				CORSOrigins:    cfg.Server.CORSOrigins,
				MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
			}).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			logger.Section("mrag")
			logger.Info("listening on %s (store=%s registry=%s faithfulness=%s)",
				srv.Addr, cfg.Store.Backend, cfg.Registry.Type, a.eval.Backend())
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.pdf>...",
	Short: "Ingest PDF documents and print their document ids",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		failed := 0
		for _, path := range args {
			result, err := ingestFile(cmd.Context(), a.svc, path)
			if err != nil {
				color.Red("✗ %s: %v", path, err)
				failed++
				continue
			}
			color.Green("✓ %s -> %s (%d pages, %d chunks, %d visual)",
				result.Document.Filename, result.Document.ID, result.Pages, result.Chunks, len(result.Document.VisualCache))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d documents failed", failed, len(args))
		}
		return nil
	},
}

var (
	askDoc string
	askPDF string
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Chat with one document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		docID := askDoc
		if askPDF != "" {
			result, err := ingestFile(ctx, a.svc, askPDF)
			if err != nil {
				return err
			}
			docID = result.Document.ID
		}
		if docID == "" {
			return fmt.Errorf("either --doc or --pdf is required")
		}
		doc, err := a.svc.Document(ctx, docID)
		if err != nil {
			return err
		}

		// Interactive chat loop with colored output
		color.Cyan("\nChat with %s (type 'exit' to quit)", doc.Filename)

		scanner := bufio.NewScanner(os.Stdin)
		userPrompt := color.New(color.FgGreen).PrintfFunc()
		assistantPrompt := color.New(color.FgCyan).PrintfFunc()

		for {
			userPrompt("\nYou: ")
			if !scanner.Scan() {
				break
			}

			query := strings.TrimSpace(scanner.Text())
			if strings.ToLower(query) == "exit" {
				break
			}
			if query == "" {
				continue
			}

			spinner := getSpinner(" Thinking...")
			resp, err := a.svc.Query(ctx, pipeline.QueryRequest{DocID: docID, Query: query})
			spinner.Finish()
			if err != nil {
				color.Red("\nError: %v\n", err)
				continue
			}

			assistantPrompt("\nAssistant: %s\n", resp.Answer)
			for _, hit := range resp.Context {
				color.HiBlack("  [page %d, score %.3f] %s", hit.Page+1, hit.Score, truncate(hit.Text, 80))
			}
		}
		return nil
	},
}

// evalCase is one entry of an evaluation dataset.
type evalCase struct {
	Query       string  `yaml:"query"`
	GroundTruth string  `yaml:"ground_truth"`
	RelevantIDs []int64 `yaml:"relevant_ids"`
}

type evalDataset struct {
	DocID string     `yaml:"doc_id"`
	PDF   string     `yaml:"pdf"`
	Cases []evalCase `yaml:"cases"`
}

var evalCmd = &cobra.Command{
	Use:   "eval <dataset.yaml>",
	Short: "Run a query dataset against one document and log its metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("error reading dataset: %v", err)
		}
		var ds evalDataset
		if err := yaml.Unmarshal(data, &ds); err != nil {
			return fmt.Errorf("error parsing dataset: %v", err)
		}
		if len(ds.Cases) == 0 {
			return fmt.Errorf("dataset %s has no cases", args[0])
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		docID := ds.DocID
		if ds.PDF != "" {
			pdfPath := ds.PDF
			if !filepath.IsAbs(pdfPath) {
				pdfPath = filepath.Join(filepath.Dir(args[0]), pdfPath)
			}
			result, err := ingestFile(ctx, a.svc, pdfPath)
			if err != nil {
				return err
			}
			docID = result.Document.ID
		}

		bar := getProgressBar(len(ds.Cases), " Evaluating queries")
		var records []models.MetricsRecord
		for _, c := range ds.Cases {
			resp, err := a.svc.Query(ctx, pipeline.QueryRequest{
				DocID:       docID,
				Query:       c.Query,
				GroundTruth: c.GroundTruth,
				RelevantIDs: c.RelevantIDs,
			})
			bar.Add(1)
			if err != nil {
				color.Red("\n✗ %q: %v", c.Query, err)
				continue
			}
			records = append(records, resp.Metrics)
		}
		bar.Finish()

		printSummary(records, len(ds.Cases), cfg.Eval.LogPath)
		return nil
	},
}

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List registered documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.svc.Documents(cmd.Context())
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			color.Yellow("No documents registered")
			return nil
		}
		for _, d := range docs {
			fmt.Printf("%s  %s  %s\n", color.CyanString(d.ID), d.Filename, d.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askDoc, "doc", "", "Document id to chat with")
	askCmd.Flags().StringVar(&askPDF, "pdf", "", "Ingest this PDF first and chat with it")
}

func ingestFile(ctx context.Context, svc *pipeline.Service, path string) (*pipeline.IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var (
		bar   *progressbar.ProgressBar
		stage pipeline.Stage
	)
	result, err := svc.Ingest(ctx, filepath.Base(path), f, func(s pipeline.Stage, done, total int) {
		if s != stage {
			if bar != nil {
				bar.Finish()
			}
			stage = s
			bar = getProgressBar(total, fmt.Sprintf(" %s %s", stageLabel(s), filepath.Base(path)))
		}
		bar.Set(done)
	})
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	return result, err
}

func stageLabel(s pipeline.Stage) string {
	switch s {
	case pipeline.StageExtract:
		return "Extracting"
	case pipeline.StageOCR:
		return "Running OCR on"
	case pipeline.StageVision:
		return "Building visual cache for"
	case pipeline.StageIndex:
		return "Indexing"
	}
	return string(s)
}

func printSummary(records []models.MetricsRecord, total int, logPath string) {
	fmt.Println()
	if len(records) == 0 {
		color.Red("No queries succeeded out of %d", total)
		return
	}

	var sum models.MetricsRecord
	for _, r := range records {
		sum.RecallAtK += r.RecallAtK
		sum.PrecisionAtK += r.PrecisionAtK
		sum.MRR += r.MRR
		sum.MAPAtK += r.MAPAtK
		sum.NDCGAtK += r.NDCGAtK
		sum.SemanticSimilarity += r.SemanticSimilarity
		sum.RougeL += r.RougeL
		sum.Faithfulness += r.Faithfulness
	}
	n := float64(len(records))

	color.Cyan("Evaluated %d of %d queries (metrics appended to %s)", len(records), total, logPath)
	rows := []struct {
		name  string
		value float64
	}{
		{"recall@k", sum.RecallAtK},
		{"precision@k", sum.PrecisionAtK},
		{"mrr", sum.MRR},
		{"map@k", sum.MAPAtK},
		{"ndcg@k", sum.NDCGAtK},
		{"semantic_similarity", sum.SemanticSimilarity},
		{"rouge_l", sum.RougeL},
		{"faithfulness", sum.Faithfulness},
	}
	for _, row := range rows {
		fmt.Printf("  %-20s %s\n", row.name, color.GreenString("%.4f", row.value/n))
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
