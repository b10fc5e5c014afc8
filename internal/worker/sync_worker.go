package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"hisab/internal/amqp"
	"hisab/internal/core"
	"hisab/internal/currency"
	"hisab/internal/export"
	"hisab/internal/ledger"
	"hisab/internal/log"
	"hisab/internal/stats"
)

// SyncWorker mirrors profiles to an exporter whenever they change.
type SyncWorker struct {
	backends        ledger.Backends
	exporter        export.Exporter
	conv            currency.Converter
	defaultCurrency string
	logger          *log.Logger

	mu     sync.Mutex
	failed map[string]ledger.Scope
}

func NewSyncWorker(backends ledger.Backends, exporter export.Exporter, conv currency.Converter, defaultCurrency string, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.NewDiscard()
	}
	return &SyncWorker{
		backends:        backends,
		exporter:        exporter,
		conv:            conv,
		defaultCurrency: defaultCurrency,
		logger:          logger.WithComponent(log.ComponentWorker),
		failed:          map[string]ledger.Scope{},
	}
}

// HandleChange re-exports the scope named by msg. Every export is a full
// rewrite, so redelivered messages are harmless.
func (w *SyncWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	scope := ledger.NewScope(msg.UserID, msg.ProfileID)
	w.logger.InfoContext(ctx, "Processing change message",
		log.NewFields().WithScope(scope.UserID, scope.ProfileID).WithAction(msg.Kind, msg.EntityID).ToSlice()...)

	if err := w.ExportScope(ctx, scope); err != nil {
		w.markFailed(scope)
		return err
	}
	w.clearFailed(scope)
	return nil
}

// ExportScope builds the export for one scope from the stored snapshot.
func (w *SyncWorker) ExportScope(ctx context.Context, scope ledger.Scope) error {
	p, err := w.buildExport(ctx, scope)
	if err != nil {
		return err
	}
	ref, err := w.exporter.ExportProfile(ctx, p)
	if err != nil {
		w.logger.ErrorContext(ctx, "Export failed",
			log.NewFields().WithScope(scope.UserID, scope.ProfileID).WithOperation(log.OpExport).WithError(err).ToSlice()...)
		return fmt.Errorf("export %s: %w", scope, err)
	}
	w.logger.InfoContext(ctx, "Scope exported",
		log.NewFields().WithScope(scope.UserID, scope.ProfileID).WithExportRef(ref).ToSlice()...)
	return nil
}

func (w *SyncWorker) buildExport(ctx context.Context, scope ledger.Scope) (export.ProfileExport, error) {
	store := w.backends.For(scope.UserID)

	state, err := store.Load(ctx, scope)
	if err != nil {
		return export.ProfileExport{}, fmt.Errorf("load %s: %w", scope, err)
	}
	settings, found, err := store.Settings(ctx, scope.UserID)
	if err != nil {
		return export.ProfileExport{}, fmt.Errorf("load settings: %w", err)
	}
	if !found {
		settings = core.DefaultSettings(w.defaultCurrency)
	}
	name, err := w.profileName(ctx, store, scope)
	if err != nil {
		return export.ProfileExport{}, err
	}

	return export.ProfileExport{
		UserID:          scope.UserID,
		ProfileID:       scope.ProfileID,
		ProfileName:     name,
		DisplayCurrency: settings.Currency,
		Transactions:    state.Transactions,
		Goals:           state.Goals,
		Stats:           stats.Aggregate(state.Transactions, settings.Currency, w.conv),
	}, nil
}

func (w *SyncWorker) profileName(ctx context.Context, store ledger.Store, scope ledger.Scope) (string, error) {
	if scope.ProfileID == core.DefaultProfileID {
		return core.DefaultProfileName, nil
	}
	profiles, err := store.Profiles(ctx, scope.UserID)
	if err != nil {
		return "", fmt.Errorf("load profiles: %w", err)
	}
	for _, p := range profiles {
		if p.ID == scope.ProfileID {
			return p.Name, nil
		}
	}
	return scope.ProfileID, nil
}

func (w *SyncWorker) markFailed(scope ledger.Scope) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failed[scope.Key()] = scope
}

func (w *SyncWorker) clearFailed(scope ledger.Scope) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.failed, scope.Key())
}

// Pending lists scopes whose last export failed.
func (w *SyncWorker) Pending() []ledger.Scope {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]ledger.Scope, 0, len(w.failed))
	for _, s := range w.failed {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// RetryFailed re-exports every pending scope, at most limit at a time.
// Scopes that succeed leave the pending set; the first error is returned.
func (w *SyncWorker) RetryFailed(ctx context.Context, limit int) error {
	pending := w.Pending()
	if len(pending) == 0 {
		return nil
	}
	w.logger.InfoContext(ctx, "Retrying failed exports", "count", len(pending))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, scope := range pending {
		g.Go(func() error {
			if err := w.ExportScope(gctx, scope); err != nil {
				return err
			}
			w.clearFailed(scope)
			return nil
		})
	}
	return g.Wait()
}
