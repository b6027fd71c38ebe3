package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/internal/types"
	"github.com/xhad/mrag/pkg/eval"
	"github.com/xhad/mrag/pkg/gateway"
	"github.com/xhad/mrag/pkg/llm"
	"github.com/xhad/mrag/pkg/pipeline"
	"github.com/xhad/mrag/pkg/processor"
	"github.com/xhad/mrag/pkg/registry"
	"github.com/xhad/mrag/pkg/retriever"
	"github.com/xhad/mrag/pkg/store"
	"github.com/xhad/mrag/pkg/synth"
	"github.com/xhad/mrag/pkg/vision"
)

// fakeExtractor returns fixed page texts and writes one PNG per page.
type fakeExtractor struct {
	pages []string
	err   error
	dir   string
}

func (f *fakeExtractor) Extract(ctx context.Context, pdfPath string) (*models.Extraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	workspace, err := os.MkdirTemp(f.dir, "extract-*")
	if err != nil {
		return nil, err
	}
	x := &models.Extraction{Pages: f.pages, Workspace: workspace}
	for i := range f.pages {
		img := filepath.Join(workspace, fmt.Sprintf("page-%d.png", i+1))
		if err := os.WriteFile(img, []byte("\x89PNG\r\n\x1a\npage"), 0o644); err != nil {
			return nil, err
		}
		x.Images = append(x.Images, img)
	}
	return x, nil
}

type fakeOCR struct{ text string }

func (f fakeOCR) Recognize(ctx context.Context, imagePath string, page int) models.Outcome {
	return models.TextOutcome(page, f.text)
}

// visionModel counts calls and classifies every page as textual.
type visionModel struct {
	mu    sync.Mutex
	calls int
}

func (m *visionModel) Generate(ctx context.Context, prompt string, images ...types.Image) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return "NO", nil
}

var firstContextLine = regexp.MustCompile(`\(Page \d+\) Page \d+ chunk \d+: ([^\n]*)`)

// textModel answers with the best-ranked context chunk.
type textModel struct{}

func (textModel) Generate(ctx context.Context, prompt string, images ...types.Image) (string, error) {
	m := firstContextLine.FindStringSubmatch(prompt)
	if m == nil {
		return "The context does not say.", nil
	}
	return "According to the document: " + m[1], nil
}

type brokenStore struct{ *store.MemoryStore }

func (brokenStore) Upsert(ctx context.Context, name string, vectors []models.StoredVector) error {
	return errors.New("connection refused")
}

type harness struct {
	svc      *pipeline.Service
	store    types.VectorStore
	registry types.Registry
	vision   *visionModel
	uploads  string
	metrics  string
}

func newHarness(t *testing.T, x types.Extractor, vs types.VectorStore) *harness {
	t.Helper()
	dir := t.TempDir()
	if vs == nil {
		vs = store.NewMemoryStore()
	}
	reg := registry.NewMemory()
	emb := llm.NewHashEmbedder(256)

	gw, err := gateway.NewWithConfig(gateway.GatewayConfig{Embedder: emb, Store: vs})
	require.NoError(t, err)
	ret, err := retriever.NewWithConfig(retriever.RetrieverConfig{Registry: reg, Gateway: gw})
	require.NoError(t, err)
	syn, err := synth.NewWithConfig(synth.SynthesizerConfig{Model: textModel{}})
	require.NoError(t, err)

	metrics := filepath.Join(dir, "rag_metrics_log.csv")
	log, err := eval.NewCSVLog(metrics)
	require.NoError(t, err)
	ev, err := eval.NewWithConfig(eval.EngineConfig{Embedder: emb, Log: log})
	require.NoError(t, err)

	vm := &visionModel{}
	uploads := filepath.Join(dir, "uploads")
	svc, err := pipeline.NewWithConfig(pipeline.ServiceConfig{
		Extractor: x,
		OCR:       fakeOCR{},
		Vision:    vision.NewBuilder(vision.BuilderConfig{Model: vm}),
		Chunker:   processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 500, ChunkOverlap: 50}),
		Gateway:   gw,
		Registry:  reg,
		Retriever: ret,
		Synth:     syn,
		Eval:      ev,
		UploadDir: uploads,
	})
	require.NoError(t, err)

	return &harness{svc: svc, store: vs, registry: reg, vision: vm, uploads: uploads, metrics: metrics}
}

func TestIngestAndQuery_EndToEnd(t *testing.T) {
	ctx := context.Background()
	x := &fakeExtractor{pages: []string{"Revenue grew from 18 to 83."}, dir: t.TempDir()}
	h := newHarness(t, x, nil)

	var stages []pipeline.Stage
	res, err := h.svc.Ingest(ctx, "report.pdf", strings.NewReader("%PDF-1.4 fake"), func(stage pipeline.Stage, done, total int) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Pages)
	require.Len(t, res.OCR, 1)
	assert.Equal(t, models.OutcomeEmpty, res.OCR[0].Status)
	assert.Empty(t, res.Document.VisualCache)
	require.Len(t, res.Visual, 1)
	assert.Equal(t, models.OutcomeSkipped, res.Visual[0].Status)
	assert.GreaterOrEqual(t, res.Chunks, 1)
	assert.Equal(t, 1, h.vision.calls, "a NO page gets no description call")
	assert.Contains(t, stages, pipeline.StageVision)
	assert.Contains(t, stages, pipeline.StageIndex)

	doc := res.Document
	assert.Equal(t, "report.pdf", doc.Filename)
	assert.Equal(t, gateway.CollectionName(doc.ID), doc.Collection)
	assert.Equal(t, filepath.Join(h.uploads, doc.ID+"_report.pdf"), doc.Path)
	data, err := os.ReadFile(doc.Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake", string(data))

	// the extraction workspace is gone once ingestion returns
	entries, err := os.ReadDir(x.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	docs, err := h.svc.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)

	resp, err := h.svc.Query(ctx, pipeline.QueryRequest{
		DocID:       doc.ID,
		Query:       "What was the revenue growth?",
		GroundTruth: "Revenue grew from 18 to 83.",
		RelevantIDs: []int64{0},
	})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Context)
	assert.LessOrEqual(t, len(resp.Context), 5)
	found := false
	for _, hit := range resp.Context {
		if strings.Contains(hit.Text, "Revenue grew from 18 to 83.") {
			found = true
		}
	}
	assert.True(t, found)
	assert.Contains(t, resp.Answer, "18")
	assert.Contains(t, resp.Answer, "83")

	assert.True(t, resp.Metrics.RelevanceKnown)
	assert.InDelta(t, 1.0, resp.Metrics.RecallAtK, 1e-9)
	assert.Greater(t, resp.Metrics.Faithfulness, 0.0)

	logged, err := os.ReadFile(h.metrics)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(logged), "\n"))
	assert.Contains(t, string(logged), "What was the revenue growth?")
}

func TestQuery_UnknownDocument(t *testing.T) {
	h := newHarness(t, &fakeExtractor{dir: t.TempDir()}, nil)
	_, err := h.svc.Query(context.Background(), pipeline.QueryRequest{DocID: "nope", Query: "anything"})
	assert.ErrorIs(t, err, types.ErrDocumentNotFound)

	_, err = h.svc.Query(context.Background(), pipeline.QueryRequest{DocID: "nope"})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestIngest_ParseErrorRegistersNothing(t *testing.T) {
	x := &fakeExtractor{err: fmt.Errorf("%w: not a pdf", types.ErrDocumentParse)}
	h := newHarness(t, x, nil)

	_, err := h.svc.Ingest(context.Background(), "broken.pdf", strings.NewReader("garbage"), nil)
	assert.ErrorIs(t, err, types.ErrDocumentParse)

	docs, _ := h.svc.Documents(context.Background())
	assert.Empty(t, docs)
	entries, _ := os.ReadDir(h.uploads)
	assert.Empty(t, entries)
}

func TestIngest_StoreFailureRegistersNothing(t *testing.T) {
	x := &fakeExtractor{pages: []string{"Revenue grew from 18 to 83."}, dir: t.TempDir()}
	h := newHarness(t, x, brokenStore{store.NewMemoryStore()})

	_, err := h.svc.Ingest(context.Background(), "report.pdf", strings.NewReader("%PDF"), nil)
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)

	docs, _ := h.svc.Documents(context.Background())
	assert.Empty(t, docs)
	entries, _ := os.ReadDir(h.uploads)
	assert.Empty(t, entries)
}

func TestIngest_NoContent(t *testing.T) {
	x := &fakeExtractor{pages: []string{"", "  "}, dir: t.TempDir()}
	h := newHarness(t, x, nil)

	_, err := h.svc.Ingest(context.Background(), "scan.pdf", strings.NewReader("%PDF"), nil)
	assert.ErrorIs(t, err, types.ErrNoContent)
}

func TestIngest_InvalidName(t *testing.T) {
	h := newHarness(t, &fakeExtractor{dir: t.TempDir()}, nil)
	_, err := h.svc.Ingest(context.Background(), "", strings.NewReader("%PDF"), nil)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestIngest_Concurrent(t *testing.T) {
	x := &fakeExtractor{pages: []string{"alpha beta gamma", "delta epsilon"}, dir: t.TempDir()}
	h := newHarness(t, x, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.Ingest(context.Background(), fmt.Sprintf("doc-%d.pdf", i), strings.NewReader("%PDF"), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	docs, err := h.svc.Documents(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 8)
	for _, d := range docs {
		ok, err := h.store.CollectionExists(context.Background(), d.Collection)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
