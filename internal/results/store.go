package results

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-lens/internal/analysis"
)

// Record is the persisted outcome of analyzing one layer of one problem phrasing.
type Record struct {
	ProblemID int                `cbor:"problem_id" json:"problem_id"`
	InputType analysis.InputType `cbor:"input_type" json:"input_type"`
	// Layer is 1-based.
	Layer  int      `cbor:"layer" json:"layer"`
	Tokens []string `cbor:"tokens" json:"tokens"`
	analysis.Result
}

var fileNamePattern = regexp.MustCompile(`^problem_(\d+)_([A-Za-z]+)_layer_(\d+)_analysis\.cbor$`)

// FileName returns the file name a record is stored under.
func FileName(problemID int, t analysis.InputType, layer int) string {
	return fmt.Sprintf("problem_%d_%s_layer_%d_analysis.cbor", problemID, t, layer)
}

// ParseFileName extracts problem id, input type and layer from a result file name.
func ParseFileName(name string) (problemID int, t analysis.InputType, layer int, ok bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, "", 0, false
	}
	problemID, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", 0, false
	}
	layer, err = strconv.Atoi(m[3])
	if err != nil {
		return 0, "", 0, false
	}
	return problemID, analysis.InputType(m[2]), layer, true
}

// Store persists records as CBOR files in a directory.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Save writes rec and returns the path it was written to.
func (s *Store) Save(rec Record) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}
	data, err := cbor.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	path := filepath.Join(s.Dir, FileName(rec.ProblemID, rec.InputType, rec.Layer))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Load decodes a single record file.
func Load(path string) (Record, error) {
	var rec Record
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode %s: %w", path, err)
	}
	return rec, nil
}

// Collect loads every record in the store, sorted by layer, problem and input
// type. Identity fields come from the file name. Files whose names do not
// parse are skipped. A missing directory yields no records.
func (s *Store) Collect() ([]Record, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".cbor" {
			continue
		}
		id, t, layer, ok := ParseFileName(e.Name())
		if !ok {
			log.Warn().Str("file", e.Name()).Msg("Skipping result file with unrecognized name")
			continue
		}
		rec, err := Load(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			return nil, err
		}
		rec.ProblemID, rec.InputType, rec.Layer = id, t, layer
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		if a.ProblemID != b.ProblemID {
			return a.ProblemID < b.ProblemID
		}
		return a.InputType < b.InputType
	})
	return records, nil
}
