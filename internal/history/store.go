package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/errs"
)

// Store reads and rewrites the purchase history wholesale.
type Store interface {
	Load(ctx context.Context) (internal.PurchaseHistory, error)
	Save(ctx context.Context, history internal.PurchaseHistory) error
}

// FileStore keeps the history as one JSON document:
// {records, lastSyncedAt, ordersCount, syncedOrderIds}.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load returns an empty history when the file does not exist yet.
func (s *FileStore) Load(ctx context.Context) (internal.PurchaseHistory, error) {
	if err := ctx.Err(); err != nil {
		return internal.PurchaseHistory{}, err
	}
	blob, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Empty(), nil
	}
	if err != nil {
		return internal.PurchaseHistory{}, errs.Wrap(fmt.Errorf("read history: %w", err), errs.CategoryIOFailure, "history_read_failed", "check HISTORY_PATH")
	}
	return Decode(blob)
}

// Save writes to a temp file in the same directory and renames it into place.
func (s *FileStore) Save(ctx context.Context, history internal.PurchaseHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blob, err := Encode(history)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(fmt.Errorf("create history directory: %w", err), errs.CategoryIOFailure, "history_write_failed", "check directory permissions")
	}
	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return errs.Wrap(fmt.Errorf("create temp history: %w", err), errs.CategoryIOFailure, "history_write_failed", "check directory permissions")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		return errs.Wrap(fmt.Errorf("write history: %w", err), errs.CategoryIOFailure, "history_write_failed", "")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errs.Wrap(fmt.Errorf("sync history: %w", err), errs.CategoryIOFailure, "history_write_failed", "")
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(fmt.Errorf("close history: %w", err), errs.CategoryIOFailure, "history_write_failed", "")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errs.Wrap(fmt.Errorf("replace history: %w", err), errs.CategoryIOFailure, "history_write_failed", "")
	}
	return nil
}

func Empty() internal.PurchaseHistory {
	return internal.PurchaseHistory{Records: []internal.PurchaseRecord{}, SyncedOrderIDs: []string{}}
}

func Decode(blob []byte) (internal.PurchaseHistory, error) {
	var h internal.PurchaseHistory
	if err := json.Unmarshal(blob, &h); err != nil {
		return internal.PurchaseHistory{}, errs.Wrap(fmt.Errorf("decode history: %w", err), errs.CategoryInvalidInput, "history_malformed", "the history document is not valid JSON")
	}
	if h.Records == nil {
		h.Records = []internal.PurchaseRecord{}
	}
	if h.SyncedOrderIDs == nil {
		h.SyncedOrderIDs = []string{}
	}
	return h, nil
}

func Encode(history internal.PurchaseHistory) ([]byte, error) {
	if history.Records == nil {
		history.Records = []internal.PurchaseRecord{}
	}
	if history.SyncedOrderIDs == nil {
		history.SyncedOrderIDs = []string{}
	}
	blob, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return nil, errs.Wrap(fmt.Errorf("encode history: %w", err), errs.CategoryInternalFailure, "history_encode_failed", "")
	}
	return append(blob, '\n'), nil
}
