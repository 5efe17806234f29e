package orders

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/errs"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/history"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/logging"
)

// RunRecorder persists a summary of each import. storage.DB implements it.
type RunRecorder interface {
	InsertRun(ctx context.Context, sessionID, kind, digest string, timings map[string]float64, counts map[string]int) error
}

type ImportService struct {
	store    history.Store
	recorder RunRecorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewImportService(store history.Store, recorder RunRecorder, logger *zap.Logger) *ImportService {
	return &ImportService{store: store, recorder: recorder, logger: logging.OrNop(logger), now: time.Now}
}

type ImportResult struct {
	FilesRead     int
	NotOrders     []string
	Failed        map[string]string
	OrdersSynced  int
	OrdersSkipped int
	RecordsAdded  int
}

// ImportDir imports every .eml file in dir, in name order.
func (s *ImportService) ImportDir(ctx context.Context, dir string) (ImportResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ImportResult{}, errs.Wrap(err, errs.CategoryIOFailure, "orders_dir_unreadable", "")
	}
	paths := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".eml") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return s.ImportFiles(ctx, paths)
}

// ImportFiles extracts orders from the given messages and syncs them into
// the history store in one load and one save. Messages that fail to parse
// are reported, not fatal.
func (s *ImportService) ImportFiles(ctx context.Context, paths []string) (ImportResult, error) {
	start := time.Now()
	res := ImportResult{NotOrders: []string{}, Failed: map[string]string{}}

	found := []internal.OrderDetail{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			res.Failed[path] = err.Error()
			continue
		}
		res.FilesRead++

		order, detect, err := ExtractOrder(raw)
		if !detect.IsOrder {
			res.NotOrders = append(res.NotOrders, path)
			s.logger.Debug("not an order confirmation", zap.String("path", path), zap.Float64("score", detect.Score))
			continue
		}
		if err != nil {
			res.Failed[path] = err.Error()
			s.logger.Warn("order extraction failed", zap.String("path", path), zap.Error(err))
			continue
		}
		found = append(found, order)
	}

	existing, err := s.store.Load(ctx)
	if err != nil {
		return res, err
	}
	synced := history.Sync(existing, found, s.now())
	if synced.OrdersSynced > 0 {
		if err := s.store.Save(ctx, synced.History); err != nil {
			return res, err
		}
	}
	res.OrdersSynced = synced.OrdersSynced
	res.OrdersSkipped = synced.OrdersSkipped
	res.RecordsAdded = synced.RecordsAdded

	s.logger.Info("orders imported",
		zap.Int("files", res.FilesRead),
		zap.Int("synced", res.OrdersSynced),
		zap.Int("skipped", res.OrdersSkipped),
		zap.Int("records", res.RecordsAdded),
		zap.Int("failed", len(res.Failed)),
	)
	if s.recorder != nil {
		counts := map[string]int{
			"files":   res.FilesRead,
			"synced":  res.OrdersSynced,
			"skipped": res.OrdersSkipped,
			"records": res.RecordsAdded,
			"failed":  len(res.Failed),
		}
		timings := map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}
		if err := s.recorder.InsertRun(ctx, uuid.NewString(), "orders_import", "", timings, counts); err != nil {
			s.logger.Warn("run log write failed", zap.Error(err))
		}
	}
	return res, nil
}
