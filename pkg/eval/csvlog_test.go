package eval_test

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/mrag/internal/models"
	"github.com/xhad/mrag/pkg/eval"
)

func readRows(t *testing.T, path string) [][]string {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVLog_AppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rag_metrics_log.csv")
	l, err := eval.NewCSVLog(path)
	require.NoError(t, err)

	rec := models.MetricsRecord{
		Timestamp:    fixedNow,
		Query:        "What was the revenue growth?",
		Answer:       "It grew from 18 to 83,\nper the chart.",
		K:            5,
		RecallAtK:    1,
		Faithfulness: 0.8123456,
		TotalTimeMS:  1520.456,
	}
	require.NoError(t, l.Append(rec))
	require.NoError(t, l.Append(rec))

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "timestamp", rows[0][0])
	assert.Equal(t, "faithfulness_score", rows[0][13])
	assert.Len(t, rows[0], 17)
	assert.Equal(t, "2024-05-01T12:00:00Z", rows[1][0])
	assert.Equal(t, rec.Answer, rows[1][4])
	assert.Equal(t, "0.8123", rows[1][13])
	assert.Equal(t, "1520.46", rows[1][16])
	assert.Equal(t, rows[1], rows[2])

	// reopening keeps the header written once
	l2, err := eval.NewCSVLog(path)
	require.NoError(t, err)
	require.NoError(t, l2.Append(rec))
	assert.Len(t, readRows(t, path), 4)
}

func TestCSVLog_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	l, err := eval.NewCSVLog(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.Append(models.MetricsRecord{Query: fmt.Sprintf("query %d", i), Timestamp: fixedNow}))
		}(i)
	}
	wg.Wait()

	rows := readRows(t, path)
	require.Len(t, rows, 51)
	for _, row := range rows[1:] {
		assert.Len(t, row, 17)
	}
}

func TestEngine_Record(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	l, err := eval.NewCSVLog(path)
	require.NoError(t, err)

	e := newEngine(t, eval.EngineConfig{Log: l})
	rec, err := e.Record(context.Background(), eval.Input{
		Query:  "q",
		Answer: "Revenue grew from 18 to 83.",
		Hits:   queryHits,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.RetrievedCount)

	rows := readRows(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "q", rows[1][1])
	assert.Equal(t, "2", rows[1][3])
}

func TestNewCSVLog_EmptyPath(t *testing.T) {
	_, err := eval.NewCSVLog("")
	assert.Error(t, err)
}
