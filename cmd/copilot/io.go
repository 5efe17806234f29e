package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/errs"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/history"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/storage"
)

func readJSON[T any](path string) (T, error) {
	var out T
	blob, err := os.ReadFile(path)
	if err != nil {
		return out, errs.Wrap(err, errs.CategoryIOFailure, "input_unreadable", "")
	}
	if err := json.Unmarshal(blob, &out); err != nil {
		return out, errs.Wrap(fmt.Errorf("%s: %w", path, err), errs.CategoryInvalidInput, "invalid_json", "")
	}
	return out, nil
}

// writeJSON prints v to stdout, or to path when set.
func writeJSON(path string, v any) error {
	var w io.Writer = os.Stdout
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func referenceDate(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Now().UTC(), nil
	}
	t, ok := internal.ParseDate(value)
	if !ok {
		return time.Time{}, errs.Invalid("invalid_date", "--date must be YYYY-MM-DD or RFC 3339, got %q", value)
	}
	return t, nil
}

// stores opens the history backend and the run log. The sqlite database
// always carries the run log; with the json backend it carries nothing else.
type stores struct {
	history history.Store
	db      *storage.DB
}

func openStores() (*stores, error) {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, errs.Wrap(err, errs.CategoryIOFailure, "db_open_failed", "check DB_PATH")
	}
	s := &stores{db: db, history: history.NewFileStore(cfg.HistoryPath)}
	if cfg.HistoryBackend == "sqlite" {
		s.history = db
	}
	return s, nil
}

func (s *stores) Close() error {
	return s.db.Close()
}

func loadHistory(ctx context.Context) (internal.PurchaseHistory, error) {
	s, err := openStores()
	if err != nil {
		return internal.PurchaseHistory{}, err
	}
	defer s.Close()
	return s.history.Load(ctx)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
