package publish

import (
	"context"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-lens/internal/analysis"
	"github.com/23skdu/longbow-lens/internal/results"
)

type recordingFlightServer struct {
	flight.BaseFlightServer

	mu    sync.Mutex
	paths []string
	rows  int64
}

func (s *recordingFlightServer) DoPut(stream flight.FlightService_DoPutServer) error {
	rdr, err := flight.NewRecordReader(stream)
	if err != nil {
		return err
	}
	defer rdr.Release()
	desc := rdr.LatestFlightDescriptor()

	var rows int64
	for rdr.Next() {
		rows += rdr.Record().NumRows()
	}
	if err := rdr.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if desc != nil {
		s.paths = append(s.paths, desc.Path...)
	}
	s.rows += rows
	return nil
}

func startFlightServer(t *testing.T) (*recordingFlightServer, string) {
	t.Helper()
	srv := &recordingFlightServer{}
	server := flight.NewServerWithMiddleware(nil)
	server.RegisterFlightService(srv)
	require.NoError(t, server.Init("localhost:0"))
	go func() {
		_ = server.Serve()
	}()
	t.Cleanup(server.Shutdown)
	return srv, server.Addr().String()
}

func TestFlightClientDoPut(t *testing.T) {
	srv, addr := startFlightServer(t)

	client, err := NewFlightClient(addr)
	require.NoError(t, err)
	defer client.Close()

	records := []results.Record{
		{ProblemID: 1, InputType: analysis.Symbolic, Layer: 6, Result: analysis.Result{AttentionEntropy: 1.1, KeywordAttentionRatio: 0.2}},
		{ProblemID: 1, InputType: analysis.Verbal, Layer: 6, Result: analysis.Result{AttentionEntropy: 2.2, KeywordAttentionRatio: 0.1}},
	}
	rb := results.BuildSummary(memory.NewGoAllocator(), records)
	defer rb.Release()

	require.NoError(t, client.DoPut(context.Background(), "attention-summary", rb))

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, []string{"attention-summary"}, srv.paths)
	assert.Equal(t, int64(2), srv.rows)
}
