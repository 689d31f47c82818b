package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bliinkai/ingest/internal/config"
	"github.com/bliinkai/ingest/internal/detect"
	"github.com/bliinkai/ingest/internal/mapper"
	"github.com/bliinkai/ingest/internal/parse"
	"github.com/bliinkai/ingest/internal/rows"
	"github.com/bliinkai/ingest/internal/schema"
	"github.com/bliinkai/ingest/internal/validate"
)

// Service runs the whole ingestion pipeline for uploaded files: detect,
// parse, derive, validate, load, and the post-batch detection-engine
// hook. Loads run in the background; callers follow them through
// SubscribeProgress and Result.
type Service struct {
	pool    *pgxpool.Pool
	cfg     *config.Config
	loader  *Loader
	limiter *LoadLimiter
	log     *slog.Logger
	client  *http.Client

	mu    sync.RWMutex
	loads map[string]*activeLoad
}

type activeLoad struct {
	ID       string
	Kind     rows.Kind
	FileName string
	Cancel   context.CancelFunc
	Progress LoadProgress
	Summary  *Summary
	Done     chan struct{}

	ListenerMu sync.Mutex
	Listeners  []chan LoadProgress
}

// NewService wires the pipeline against the shared pool.
func NewService(pool *pgxpool.Pool, cfg *config.Config, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:    pool,
		cfg:     cfg,
		loader:  NewLoader(pool, cfg.Load, log),
		limiter: NewLoadLimiter(cfg.Load.MaxConcurrent, cfg.Load.MaxWaitTime),
		log:     log,
		client:  &http.Client{Timeout: cfg.AML.RulesTimeout},
		loads:   make(map[string]*activeLoad),
	}
}

// Loader exposes the underlying loader, mainly for administrative
// operations like the account back-fill.
func (s *Service) Loader() *Loader { return s.loader }

// Drain waits for in-flight loads to finish, for graceful shutdown.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// StartLoad begins an asynchronous load and returns its id. kindHint
// names the record family for delimited files (fixed-width files carry
// it in their name); mapping optionally maps canonical columns to
// source headers. Returns ErrTooManyLoads when all slots are busy.
func (s *Service) StartLoad(ctx context.Context, fileName string, fileData []byte, kindHint rows.Kind, mapping map[string]string) (string, error) {
	if int64(len(fileData)) > s.cfg.Load.MaxFileSize {
		return "", fmt.Errorf("file %q exceeds the %d byte limit", fileName, s.cfg.Load.MaxFileSize)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	loadID := uuid.New().String()
	loadCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Load.Timeout)

	load := &activeLoad{
		ID:       loadID,
		Kind:     kindHint,
		FileName: fileName,
		Cancel:   cancel,
		Progress: LoadProgress{
			LoadID:   loadID,
			Kind:     string(kindHint),
			Phase:    PhaseStarting,
			FileName: fileName,
		},
		Done: make(chan struct{}),
	}

	s.mu.Lock()
	s.loads[loadID] = load
	s.mu.Unlock()

	go s.processLoad(loadCtx, load, fileData, mapping)

	return loadID, nil
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the load completes.
func (s *Service) SubscribeProgress(loadID string) (<-chan LoadProgress, error) {
	load, err := s.find(loadID)
	if err != nil {
		return nil, err
	}

	ch := make(chan LoadProgress, 10)

	load.ListenerMu.Lock()
	load.Listeners = append(load.Listeners, ch)
	select {
	case ch <- load.Progress:
	default:
	}
	load.ListenerMu.Unlock()

	return ch, nil
}

// CancelLoad cancels an in-progress load. Chunks already committed stay
// committed.
func (s *Service) CancelLoad(loadID string) error {
	load, err := s.find(loadID)
	if err != nil {
		return err
	}
	load.Cancel()
	return nil
}

// Result returns the outcome of a load, blocking until it completes.
func (s *Service) Result(loadID string) (*Summary, error) {
	load, err := s.find(loadID)
	if err != nil {
		return nil, err
	}
	<-load.Done
	return load.Summary, nil
}

// Progress returns the current progress without blocking.
func (s *Service) Progress(loadID string) (LoadProgress, error) {
	load, err := s.find(loadID)
	if err != nil {
		return LoadProgress{}, err
	}
	load.ListenerMu.Lock()
	p := load.Progress
	load.ListenerMu.Unlock()
	return p, nil
}

func (s *Service) find(loadID string) (*activeLoad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	load, ok := s.loads[loadID]
	if !ok {
		return nil, fmt.Errorf("load not found: %s", loadID)
	}
	return load, nil
}

func (s *Service) setPhase(load *activeLoad, phase LoadPhase, mutate func(*LoadProgress)) {
	load.ListenerMu.Lock()
	load.Progress.Phase = phase
	if mutate != nil {
		mutate(&load.Progress)
	}
	p := load.Progress
	for _, ch := range load.Listeners {
		select {
		case ch <- p:
		default:
		}
	}
	load.ListenerMu.Unlock()
}

func (s *Service) processLoad(ctx context.Context, load *activeLoad, fileData []byte, mapping map[string]string) {
	defer load.Cancel()
	defer s.limiter.Release()

	sum, err := s.run(ctx, load, fileData, mapping)
	if sum == nil {
		sum = &Summary{LoadID: load.ID, FileName: load.FileName, Kind: string(load.Kind)}
	}
	sum.LoadID = load.ID

	load.Summary = sum
	switch {
	case err == nil:
		s.setPhase(load, PhaseComplete, func(p *LoadProgress) {
			p.Loaded = sum.Loaded()
			p.Skipped = sum.Skipped
			p.Failed = len(sum.FailedRows)
			p.CurrentRow = sum.TotalRows
			p.TotalRows = sum.TotalRows
		})
		s.log.Info("load complete",
			"load_id", load.ID, "kind", sum.Kind, "file", sum.FileName,
			"loaded", sum.Loaded(), "skipped", sum.Skipped,
			"failed", len(sum.FailedRows), "duration", sum.Duration)
	case ctx.Err() != nil:
		if sum.Error == "" {
			sum.Error = ctx.Err().Error()
		}
		s.setPhase(load, PhaseCancelled, func(p *LoadProgress) { p.Error = sum.Error })
		s.log.Warn("load cancelled", "load_id", load.ID, "file", load.FileName, "error", sum.Error)
	default:
		if sum.Error == "" {
			sum.Error = err.Error()
		}
		s.setPhase(load, PhaseFailed, func(p *LoadProgress) { p.Error = sum.Error })
		s.log.Error("load failed", "load_id", load.ID, "file", load.FileName, "error", sum.Error)
	}

	close(load.Done)

	load.ListenerMu.Lock()
	for _, ch := range load.Listeners {
		close(ch)
	}
	load.Listeners = nil
	load.ListenerMu.Unlock()
}

// run executes the pipeline stages and returns the summary.
func (s *Service) run(ctx context.Context, load *activeLoad, fileData []byte, mapping map[string]string) (*Summary, error) {
	s.setPhase(load, PhaseDetecting, nil)

	det, err := detect.File(load.FileName, fileData)
	if err != nil {
		return nil, fmt.Errorf("detect %q: %w", load.FileName, err)
	}

	kind := load.Kind
	if det.Format == rows.FormatFixedWidth {
		kind = det.Kind
	}
	if kind == "" {
		return nil, fmt.Errorf("no record kind for delimited file %q", load.FileName)
	}
	load.Kind = kind

	decoded, err := detect.Decode(fileData, det.Encoding)
	if err != nil {
		return nil, fmt.Errorf("decode %q as %s: %w", load.FileName, det.Encoding, err)
	}

	s.setPhase(load, PhaseParsing, func(p *LoadProgress) { p.Kind = string(kind) })

	table, warnings, err := s.parseStage(kind, det, decoded, mapping)
	if err != nil {
		return nil, err
	}

	s.setPhase(load, PhaseValidating, func(p *LoadProgress) { p.TotalRows = table.Len() })

	// Any validation error rejects the whole batch; nothing reaches the
	// database.
	if failed := validationFailures(kind, table, load.FileName); len(failed) > 0 {
		sum := &Summary{
			Kind:       string(kind),
			FileName:   load.FileName,
			TotalRows:  table.Len(),
			FailedRows: failed,
			Warnings:   warnings,
		}
		sum.Error = fmt.Sprintf("validation failed: %d of %d rows rejected", len(failed), table.Len())
		return sum, fmt.Errorf("%s", sum.Error)
	}

	s.setPhase(load, PhaseLoading, func(p *LoadProgress) { p.TotalRows = table.Len() })

	var sum *Summary
	switch kind {
	case rows.KindCustomer:
		sum, err = s.loader.LoadEntities(ctx, table, load.FileName)
	case rows.KindAccount:
		sum, err = s.loader.LoadAccounts(ctx, table, load.FileName)
	case rows.KindTransaction:
		sum, err = s.loader.LoadTransactions(ctx, table, load.FileName)
	case rows.KindRelationship:
		sum, err = s.loader.LoadRelationships(ctx, table, load.FileName)
	case rows.KindList:
		sum, err = s.loader.LoadListEntries(ctx, table, load.FileName)
	default:
		return nil, fmt.Errorf("unsupported record kind %q", kind)
	}
	if sum != nil {
		sum.Warnings = append(warnings, sum.Warnings...)
	}
	if err != nil {
		return sum, err
	}

	// Accounts loaded before their owning customer pick up entity ids as
	// soon as any batch makes the link resolvable.
	if kind == rows.KindCustomer || kind == rows.KindAccount || kind == rows.KindTransaction {
		if filled, err := s.loader.BackfillAccountEntities(ctx); err != nil {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("account back-fill: %v", err))
		} else if filled > 0 {
			sum.Warnings = append(sum.Warnings, fmt.Sprintf("back-filled entity_id on %d accounts", filled))
		}
	}

	if kind == rows.KindTransaction {
		s.runRulesHook(ctx, sum)
	}

	return sum, nil
}

// parseStage turns file bytes into a canonical table, applying the
// fixed-width derivations where the layout calls for them.
func (s *Service) parseStage(kind rows.Kind, det detect.Result, data []byte, mapping map[string]string) (*rows.Table, []string, error) {
	if det.Format == rows.FormatFixedWidth {
		layout, err := schema.ByKind(kind)
		if err != nil {
			return nil, nil, err
		}
		table, warnings, err := parse.FixedWidth(data, layout)
		if err != nil {
			return nil, nil, fmt.Errorf("parse fixed-width: %w", err)
		}

		switch kind {
		case rows.KindCustomer:
			mapper.DeriveCustomer(table)
		case rows.KindAccount:
			mapper.DeriveAccount(table)
		case rows.KindTransaction:
			mapper.DeriveTransaction(table, s.loader.now())
		}
		return table, warnings, nil
	}

	header, records, err := parse.Delimited(data, det.Delimiter)
	if err != nil {
		return nil, nil, fmt.Errorf("parse delimited: %w", err)
	}
	table, err := mapper.MapDelimited(kind, header, records, mapping)
	if err != nil {
		return nil, nil, err
	}
	return table, nil, nil
}

// validationFailures runs batch validation and reports every invalid
// row. A non-empty return rejects the batch whole; valid rows in a
// rejected batch are never loaded.
func validationFailures(kind rows.Kind, t *rows.Table, fileName string) []FailedRow {
	errs := validate.Batch(kind, t)
	if len(errs) == 0 {
		return nil
	}

	bad := make(map[int][]validate.Error)
	for _, e := range errs {
		bad[e.Row] = append(bad[e.Row], e)
	}

	var failed []FailedRow
	for i := 0; i < t.Len(); i++ {
		rowErrs, ok := bad[i]
		if !ok {
			continue
		}
		failed = append(failed, FailedRow{
			FileName:   fileName,
			LineNumber: t.Line(i),
			Reason:     validate.Messages(rowErrs)[0],
		})
	}
	return failed
}

// rulesHookPayload is the body POSTed to the detection engine after a
// successful transaction batch.
type rulesHookPayload struct {
	BatchID   string `json:"batch_id"`
	FileName  string `json:"file_name"`
	Loaded    int    `json:"loaded"`
	Timestamp string `json:"timestamp"`
}

// runRulesHook notifies the downstream AML rules engine. Failures are
// reported as warnings, never as load failures; the data is already
// committed.
func (s *Service) runRulesHook(ctx context.Context, sum *Summary) {
	if !s.cfg.AML.RunRulesTransactor || s.cfg.AML.RulesURL == "" {
		return
	}

	body, err := json.Marshal(rulesHookPayload{
		BatchID:   sum.BatchID,
		FileName:  sum.FileName,
		Loaded:    sum.Loaded(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("rules hook: %v", err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.AML.RulesURL, bytes.NewReader(body))
	if err != nil {
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("rules hook: %v", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("rules hook failed", "batch_id", sum.BatchID, "error", err)
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("rules hook: %v", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		s.log.Warn("rules hook rejected", "batch_id", sum.BatchID, "status", resp.StatusCode)
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("rules hook: status %d", resp.StatusCode))
		return
	}
	s.log.Info("rules hook accepted", "batch_id", sum.BatchID)
}
