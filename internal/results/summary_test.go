package results

import (
	"bytes"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-lens/internal/analysis"
)

func sampleRecords() []Record {
	return []Record{
		rec(1, analysis.Symbolic, 6, 1.5, 0.25),
		rec(1, analysis.Verbal, 6, 2, 0.5),
		rec(1, analysis.Symbolic, 7, 1, 0.125),
	}
}

func TestBuildSummary(t *testing.T) {
	pool := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer pool.AssertSize(t, 0)

	rb := BuildSummary(pool, sampleRecords())
	defer rb.Release()

	assert.Equal(t, int64(3), rb.NumRows())
	assert.Equal(t, int64(5), rb.NumCols())
	assert.Equal(t, "input_type", rb.ColumnName(1))
	assert.Equal(t, "verbal", rb.Column(1).(*array.String).Value(1))
	assert.Equal(t, int64(7), rb.Column(2).(*array.Int64).Value(2))
	assert.Equal(t, 0.125, rb.Column(4).(*array.Float64).Value(2))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "problem_id,input_type,layer,attention_entropy,keyword_attention_ratio", lines[0])
	assert.Equal(t, "1,verbal,6,2,0.5", lines[2])
}

func TestWriteIPC(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteIPC(&buf, sampleRecords()))

	r, err := ipc.NewReader(&buf)
	require.NoError(t, err)
	defer r.Release()

	require.True(t, r.Next())
	assert.Equal(t, int64(3), r.Record().NumRows())
	assert.True(t, r.Schema().Equal(SummarySchema))
}

func TestByLayer(t *testing.T) {
	records := []Record{
		rec(1, analysis.Symbolic, 8, 0, 0),
		rec(1, analysis.Symbolic, 6, 0, 0),
		rec(1, analysis.Verbal, 8, 0, 0),
	}
	groups := ByLayer(records)
	require.Len(t, groups, 2)
	assert.Equal(t, 6, groups[0].Layer)
	assert.Len(t, groups[0].Records, 1)
	assert.Equal(t, 8, groups[1].Layer)
	assert.Equal(t, analysis.Verbal, groups[1].Records[1].InputType)

	assert.Empty(t, ByLayer(nil))
}
