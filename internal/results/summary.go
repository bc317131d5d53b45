package results

import (
	"fmt"
	"io"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// SummarySchema is the column layout of the per-layer summary table.
var SummarySchema = arrow.NewSchema(
	[]arrow.Field{
		{Name: "problem_id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "input_type", Type: arrow.BinaryTypes.String},
		{Name: "layer", Type: arrow.PrimitiveTypes.Int64},
		{Name: "attention_entropy", Type: arrow.PrimitiveTypes.Float64},
		{Name: "keyword_attention_ratio", Type: arrow.PrimitiveTypes.Float64},
	},
	nil,
)

// BuildSummary converts records into a single record batch. The caller must
// release it.
func BuildSummary(mem memory.Allocator, records []Record) arrow.RecordBatch {
	b := array.NewRecordBuilder(mem, SummarySchema)
	defer b.Release()

	ids := b.Field(0).(*array.Int64Builder)
	types := b.Field(1).(*array.StringBuilder)
	layers := b.Field(2).(*array.Int64Builder)
	entropy := b.Field(3).(*array.Float64Builder)
	ratio := b.Field(4).(*array.Float64Builder)

	for _, r := range records {
		ids.Append(int64(r.ProblemID))
		types.Append(string(r.InputType))
		layers.Append(int64(r.Layer))
		entropy.Append(r.AttentionEntropy)
		ratio.Append(r.KeywordAttentionRatio)
	}
	return b.NewRecordBatch()
}

// WriteCSV writes the summary table with a header row.
func WriteCSV(w io.Writer, records []Record) error {
	rec := BuildSummary(memory.DefaultAllocator, records)
	defer rec.Release()

	cw := csv.NewWriter(w, SummarySchema, csv.WithHeader(true))
	if err := cw.Write(rec); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// WriteIPC writes the summary table as an Arrow IPC stream.
func WriteIPC(w io.Writer, records []Record) error {
	rec := BuildSummary(memory.DefaultAllocator, records)
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

// LayerGroup holds the records of one layer.
type LayerGroup struct {
	Layer   int
	Records []Record
}

// ByLayer groups records by layer in ascending layer order, preserving the
// input order within each group.
func ByLayer(records []Record) []LayerGroup {
	idx := make(map[int]int)
	var groups []LayerGroup
	for _, r := range records {
		i, ok := idx[r.Layer]
		if !ok {
			i = len(groups)
			idx[r.Layer] = i
			groups = append(groups, LayerGroup{Layer: r.Layer})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Layer < groups[j].Layer })
	return groups
}
