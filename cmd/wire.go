package main

import (
	"context"
	"fmt"

	"github.com/xhad/mrag/internal/types"
	cfgPkg "github.com/xhad/mrag/pkg/config"
	"github.com/xhad/mrag/pkg/eval"
	"github.com/xhad/mrag/pkg/extractor"
	"github.com/xhad/mrag/pkg/gateway"
	"github.com/xhad/mrag/pkg/llm"
	"github.com/xhad/mrag/pkg/ocr"
	"github.com/xhad/mrag/pkg/pipeline"
	"github.com/xhad/mrag/pkg/processor"
	"github.com/xhad/mrag/pkg/registry"
	"github.com/xhad/mrag/pkg/retriever"
	"github.com/xhad/mrag/pkg/store"
	"github.com/xhad/mrag/pkg/synth"
	"github.com/xhad/mrag/pkg/vision"
)

// app holds the process-wide components built from one Config.
type app struct {
	svc      *pipeline.Service
	eval     *eval.Engine
	store    types.VectorStore
	registry types.Registry
}

func (a *app) Close() {
	if err := a.registry.Close(); err != nil {
		fmt.Printf("failed to close registry: %v\n", err)
	}
	a.store.Close()
}

func newApp(ctx context.Context, c *cfgPkg.Config) (*app, error) {
	// The vision and text engines carry separate credentials.
	textEngine, err := llm.NewWithConfig(ctx, llm.ChatConfig{
		Provider:    c.LLM.Provider,
		Model:       c.LLM.Text.Model,
		APIKey:      c.LLM.Text.APIKey,
		Temperature: c.LLM.Temperature,
		MaxTokens:   c.LLM.MaxTokens,
		BaseURL:     c.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize text model: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(ctx, llm.EmbedderConfig{
		Provider:  c.Embedder.Provider,
		Model:     c.Embedder.Model,
		APIKey:    c.Embedder.APIKey,
		BaseURL:   c.Embedder.BaseURL,
		BatchSize: c.Embedder.BatchSize,
		Dimension: c.Embedder.Dimension,
	})
	if err != nil {
		return nil, err
	}

	vs, err := store.New(ctx, store.Config{
		Backend:  c.Store.Backend,
		PgVector: store.PgVectorConfig{ConnString: c.Store.DatabaseURL},
		Qdrant: store.QdrantConfig{
			URL:     c.Store.QdrantURL,
			APIKey:  c.Store.QdrantAPIKey,
			Timeout: c.Store.Timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	reg, err := registry.New(ctx, registry.Config{Type: c.Registry.Type, Path: c.Registry.Path})
	if err != nil {
		vs.Close()
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}
	a := &app{store: vs, registry: reg}

	gw, err := gateway.NewWithConfig(gateway.GatewayConfig{Embedder: embedder, Store: vs})
	if err != nil {
		a.Close()
		return nil, err
	}
	ret, err := retriever.NewWithConfig(retriever.RetrieverConfig{Registry: reg, Gateway: gw, TopK: c.Retrieval.TopK})
	if err != nil {
		a.Close()
		return nil, err
	}
	syn, err := synth.NewWithConfig(synth.SynthesizerConfig{Model: textEngine, Timeout: c.LLM.GenerationTimeout})
	if err != nil {
		a.Close()
		return nil, err
	}

	metricsLog, err := eval.NewCSVLog(c.Eval.LogPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	engineConfig := eval.EngineConfig{
		Embedder:      embedder,
		Backend:       c.Eval.Backend,
		K:             c.Retrieval.TopK,
		Log:           metricsLog,
		GraderTimeout: c.Eval.GraderTimeout,
	}
	if c.Eval.Backend == eval.BackendGrader {
		engineConfig.Grader = &eval.LLMGrader{Model: textEngine}
	}
	a.eval, err = eval.NewWithConfig(engineConfig)
	if err != nil {
		a.Close()
		return nil, err
	}

	serviceConfig := pipeline.ServiceConfig{
		Extractor: extractor.NewWithConfig(extractor.ExtractorConfig{
			ScratchDir: c.Extractor.ScratchDir,
			DPI:        c.Extractor.DPI,
			Raster:     extractor.NewPoppler(c.Extractor.Pdftoppm),
		}),
		Chunker: processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:    c.Processor.ChunkSize,
			ChunkOverlap: c.Processor.ChunkOverlap,
		}),
		Gateway:   gw,
		Registry:  reg,
		Retriever: ret,
		Synth:     syn,
		Eval:      a.eval,
		UploadDir: c.Server.UploadDir,
	}
	if !c.OCR.Disabled {
		serviceConfig.OCR = ocr.NewWithConfig(ocr.TesseractConfig{
			Command:       c.OCR.Command,
			Lang:          c.OCR.Lang,
			MinConfidence: c.OCR.MinConfidence,
			Timeout:       c.OCR.Timeout,
		})
	}
	if !c.Vision.Disabled {
		visionEngine, err := llm.NewWithConfig(ctx, llm.ChatConfig{
			Provider:    c.LLM.Provider,
			Model:       c.LLM.Vision.Model,
			APIKey:      c.LLM.Vision.APIKey,
			Temperature: c.LLM.Temperature,
			MaxTokens:   c.LLM.MaxTokens,
			BaseURL:     c.LLM.BaseURL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize vision model: %w", err)
		}
		serviceConfig.Vision = vision.NewBuilder(vision.BuilderConfig{
			Model: visionEngine,
			Pacer: vision.NewPacer(vision.PacerConfig{
				CallDelay:         c.Vision.CallDelay,
				ErrorDelay:        c.Vision.ErrorDelay,
				RequestsPerMinute: c.Vision.RequestsPerMinute,
			}),
		})
	}

	a.svc, err = pipeline.NewWithConfig(serviceConfig)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
