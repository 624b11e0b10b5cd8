// Package service glues the conversion handler to the rest of Verto: the
// live preference store, the engine, the output directory, the event bus
// and the (optional) history ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/hbomb79/Verto/internal/capability"
	"github.com/hbomb79/Verto/internal/conversion"
	"github.com/hbomb79/Verto/internal/engine"
	"github.com/hbomb79/Verto/internal/event"
	"github.com/hbomb79/Verto/internal/history"
	"github.com/hbomb79/Verto/internal/settings"
	"github.com/hbomb79/Verto/pkg/logger"
	"github.com/jmoiron/sqlx"
)

var log = logger.Get("Converter")

var (
	ErrRawPathRequiresNative = errors.New("raw path conversions require the native engine")
	ErrHistoryUnavailable    = errors.New("conversion history is not enabled")
	ErrInvalidOverrides      = errors.New("invalid preference overrides")
)

type (
	// EngineFactory returns a new engine for a single request. Engines are
	// not shared between concurrent requests.
	EngineFactory func() (engine.Engine, error)

	Database interface {
		WrapTx(func(*sqlx.Tx) error) error
		GetSqlxDb() *sqlx.DB
	}

	// Request describes a single logical conversion request.
	Request struct {
		Inputs  []engine.Input
		IsImage bool

		// Overrides are layered over the live preferences for this
		// request only (see settings.WithOverrides).
		Overrides   map[string]any
		ForceNoTrim bool

		// Args, if set, is used verbatim instead of building the argument
		// sequence from the preferences. With Flags.RawPath, the final
		// argument is the caller's own output path.
		Args  []string
		Flags conversion.OperationFlags

		// RawOutput is the caller's own output path, appended to the built
		// argument sequence. Setting it implies Flags.RawPath.
		RawOutput string

		// OutputDir replaces the converter's default output directory.
		OutputDir string
	}

	Result struct {
		RequestID uuid.UUID           `json:"request_id"`
		Outputs   []conversion.Output `json:"-"`
		Saved     []string            `json:"saved"`
	}

	Converter struct {
		preferences  *settings.Store
		newEngine    EngineFactory
		capabilities capability.Table
		events       event.EventDispatcher
		outputDir    string

		db      Database
		history *history.Store
	}
)

func NewConverter(preferences *settings.Store, newEngine EngineFactory, capabilities capability.Table, events event.EventDispatcher, outputDir string) *Converter {
	return &Converter{
		preferences:  preferences,
		newEngine:    newEngine,
		capabilities: capabilities,
		events:       events,
		outputDir:    outputDir,
	}
}

// WithHistory enables recording of every saved output to the database provided.
func (converter *Converter) WithHistory(db Database, store *history.Store) *Converter {
	converter.db = db
	converter.history = store
	return converter
}

func (converter *Converter) Capabilities() capability.Table { return converter.capabilities }

// Convert runs the request provided to completion using a fresh handler and
// engine, saving every output to the output directory. Concurrent calls are
// independent of one another.
func (converter *Converter) Convert(ctx context.Context, request Request) (Result, error) {
	requestID := uuid.New()
	result, err := converter.convert(ctx, requestID, request)
	if err != nil {
		log.Emit(logger.ERROR, "Request %s failed: %v\n", requestID, err)
		converter.events.Dispatch(event.CONVERSION_FAILED, requestID)
		return result, err
	}

	log.Emit(logger.SUCCESS, "Request %s complete with %d output(s)\n", requestID, len(result.Saved))
	converter.events.Dispatch(event.CONVERSION_COMPLETE, requestID)
	return result, nil
}

func (converter *Converter) convert(ctx context.Context, requestID uuid.UUID, request Request) (Result, error) {
	result := Result{RequestID: requestID}

	prefs, err := settings.WithOverrides(converter.preferences.Current(), request.Overrides)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrInvalidOverrides, err)
	}

	if request.RawOutput != "" {
		request.Flags.RawPath = true
	}

	eng, err := converter.newEngine()
	if err != nil {
		return result, fmt.Errorf("failed to create engine: %w", err)
	}
	defer converter.releaseEngine(eng)
	if request.Flags.RawPath && !eng.Native() {
		return result, ErrRawPathRequiresNative
	}

	handler := conversion.New(settings.NewSnapshot(prefs, request.ForceNoTrim), eng, converter.capabilities, func(operationID uuid.UUID, state conversion.State) {
		converter.events.Dispatch(event.CONVERSION_UPDATE, event.ConversionUpdate{RequestID: requestID, OperationID: operationID, State: state.String()})
	})
	defer handler.CompleteOperation()

	if err := handler.AddInputs(request.Inputs); err != nil {
		return result, err
	}
	if err := handler.CheckFlags(request.Flags); err != nil {
		return result, err
	}

	args := request.Args
	if len(args) == 0 {
		if args, err = handler.Build(request.IsImage); err != nil {
			return result, err
		}
		if request.RawOutput != "" {
			args = append(args, request.RawOutput)
		}
	}

	outputs, err := handler.Start(ctx, args, request.Flags)
	if err != nil {
		return result, err
	}
	result.Outputs = outputs

	dir := request.OutputDir
	if dir == "" {
		dir = converter.outputDir
	}
	if result.Saved, err = conversion.Save(outputs, dir); err != nil {
		return result, err
	}

	if err := converter.record(requestID, outputs, result.Saved); err != nil {
		// The outputs are already saved, so the request itself succeeded
		log.Emit(logger.WARNING, "Failed to record history for request %s: %v\n", requestID, err)
	}

	return result, nil
}

func (converter *Converter) releaseEngine(eng engine.Engine) {
	if err := eng.Shutdown(context.Background()); err != nil {
		log.Emit(logger.WARNING, "Failed to shutdown engine: %v\n", err)
	}

	if closer, ok := eng.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Emit(logger.WARNING, "Failed to close engine: %v\n", err)
		}
	}
}

func (converter *Converter) record(requestID uuid.UUID, outputs []conversion.Output, saved []string) error {
	if converter.db == nil {
		return nil
	}

	entries := make([]history.Entry, len(outputs))
	for i, out := range outputs {
		entries[i] = history.Entry{
			RequestID:      requestID,
			OperationID:    out.OperationID,
			OperationIndex: i,
			Name:           out.Name,
			Extension:      out.Extension,
			Location:       saved[i],
		}
		if info, err := os.Stat(saved[i]); err == nil {
			entries[i].SizeBytes = info.Size()
		}
	}

	return converter.db.WrapTx(func(tx *sqlx.Tx) error { return converter.history.Record(tx, entries) })
}

// History returns the most recently recorded outputs.
func (converter *Converter) History(limit int) ([]history.Entry, error) {
	if converter.db == nil {
		return nil, ErrHistoryUnavailable
	}

	return converter.history.List(converter.db.GetSqlxDb(), limit)
}

// RequestHistory returns the recorded outputs of a single request.
func (converter *Converter) RequestHistory(requestID uuid.UUID) ([]history.Entry, error) {
	if converter.db == nil {
		return nil, ErrHistoryUnavailable
	}

	return converter.history.ListForRequest(converter.db.GetSqlxDb(), requestID)
}
