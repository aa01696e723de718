package memory

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"ocp/internal/core"
	"ocp/internal/overlap"
	"ocp/internal/sheets"
)

// Store keeps contracts and retention choices in memory.
type Store struct {
	mu         sync.Mutex
	items      []core.Contract
	ids        map[string]struct{}
	selections overlap.Selections
}

var (
	_ sheets.ContractReader  = (*Store)(nil)
	_ sheets.SelectionReader = (*Store)(nil)
	_ sheets.SelectionWriter = (*Store)(nil)
)

func New(contracts []core.Contract) *Store {
	s := &Store{ids: map[string]struct{}{}, selections: overlap.Selections{}}
	for _, c := range contracts {
		_ = s.Add(c)
	}
	return s
}

// NewFromFiles loads every *.csv file in base. Files are read concurrently
// and merged in name order; a missing directory yields an empty store.
func NewFromFiles(ctx context.Context, base string) (*Store, error) {
	paths, err := filepath.Glob(filepath.Join(base, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", base, err)
	}
	sort.Strings(paths)

	loaded := make([][]core.Contract, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			contracts, err := ReadCSVFile(p)
			if err != nil {
				return err
			}
			loaded[i] = contracts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := New(nil)
	for i, contracts := range loaded {
		for _, c := range contracts {
			if err := s.Add(c); err != nil {
				slog.Warn("Skipping contract", "file", paths[i], "id", c.ID, "error", err)
			}
		}
	}
	return s, nil
}

// ReadCSVFile parses one contract CSV file. Rejected rows are logged and
// skipped; a bad header fails the file.
func ReadCSVFile(path string) ([]core.Contract, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	contracts, rowErrs, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	for _, re := range rowErrs {
		slog.Warn("Rejected contract row", "file", path, "row", re.Row, "error", re.Err)
	}
	return contracts, nil
}

// ReadCSV parses contract rows from r. The first record is the header. A
// leading byte order mark is skipped.
func ReadCSV(r io.Reader) ([]core.Contract, []sheets.RowError, error) {
	br := bufio.NewReader(r)
	if ch, _, err := br.ReadRune(); err == nil && ch != '\ufeff' {
		_ = br.UnreadRune()
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return sheets.ParseTable(records[0], records[1:])
}

// Add stores a contract. Ids must be unique within the store.
func (s *Store) Add(c core.Contract) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[c.ID]; ok {
		return fmt.Errorf("%w %q", sheets.ErrDuplicateID, c.ID)
	}
	s.ids[c.ID] = struct{}{}
	s.items = append(s.items, c)
	return nil
}

// ListContracts returns a copy of the stored contracts in insertion order.
func (s *Store) ListContracts(_ context.Context) ([]core.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Contract(nil), s.items...), nil
}

func (s *Store) ListSelections(_ context.Context) (overlap.Selections, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(overlap.Selections, len(s.selections))
	for k, v := range s.selections {
		kept := make(overlap.KeptSet, len(v))
		for id := range v {
			kept[id] = struct{}{}
		}
		out[k] = kept
	}
	return out, nil
}

func (s *Store) SaveSelection(_ context.Context, key overlap.GroupKey, kept []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections[key] = overlap.NewKeptSet(kept...)
	return nil
}

func (s *Store) ClearSelection(_ context.Context, key overlap.GroupKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.selections, key)
	return nil
}
