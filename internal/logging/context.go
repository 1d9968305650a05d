package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSeries is the standardized structured logging key for the series being processed.
	FieldSeries = "series"
	// FieldStep is the standardized structured logging key for pipeline step names.
	FieldStep = "step"
	// FieldUnit is the standardized structured logging key for work unit identifiers (e.g. s01e02).
	FieldUnit = "unit"
	// FieldUnitIndex is the standardized structured logging key for 1-based unit index within a step.
	FieldUnitIndex = "unit_index"
	// FieldUnitCount is the standardized structured logging key for total units in a step.
	FieldUnitCount = "unit_count"
	// FieldRunID is the standardized structured logging key for run correlation identifiers.
	FieldRunID = "run_id"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldDecisionType is the standardized structured logging key for checkpoint decision categories.
	FieldDecisionType = "decision_type"
	// FieldErrorHint is the standardized structured logging key for operator guidance on errors.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

type contextKey string

const (
	ctxKeySeries contextKey = "series"
	ctxKeyStep   contextKey = "step"
	ctxKeyUnit   contextKey = "unit"
	ctxKeyRunID  contextKey = "run_id"
)

// WithSeries stores the series name on the context for log enrichment.
func WithSeries(ctx context.Context, series string) context.Context {
	if series == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeySeries, series)
}

// SeriesFromContext reports the series name stored on the context, if any.
func SeriesFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(ctxKeySeries).(string)
	return value, ok && value != ""
}

// WithStep stores the active step name on the context for log enrichment.
func WithStep(ctx context.Context, step string) context.Context {
	if step == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyStep, step)
}

// StepFromContext reports the step name stored on the context, if any.
func StepFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(ctxKeyStep).(string)
	return value, ok && value != ""
}

// WithUnit stores the active unit identifier on the context for log enrichment.
func WithUnit(ctx context.Context, unit string) context.Context {
	if unit == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyUnit, unit)
}

// UnitFromContext reports the unit identifier stored on the context, if any.
func UnitFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(ctxKeyUnit).(string)
	return value, ok && value != ""
}

// WithRunID stores the run correlation identifier on the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRunID, runID)
}

// RunIDFromContext reports the run identifier stored on the context, if any.
func RunIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(ctxKeyRunID).(string)
	return value, ok && value != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if series, ok := SeriesFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSeries, series))
	}
	if step, ok := StepFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStep, step))
	}
	if unit, ok := UnitFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldUnit, unit))
	}
	if rid, ok := RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
