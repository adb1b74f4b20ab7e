package models

import (
	"encoding/json"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindSourceFetch         ErrorKind = "SourceFetch"
	KindScoring             ErrorKind = "Scoring"
	KindForecastUnavailable ErrorKind = "ForecastUnavailable"
	KindSimulationNumeric   ErrorKind = "SimulationNumeric"
	KindCanceled            ErrorKind = "Canceled"
	KindInternal            ErrorKind = "Internal"
	KindInvalidRequest      ErrorKind = "InvalidRequest"
)

// AnalysisError is the structured error variant of a pipeline run.
type AnalysisError struct {
	Ticker  string    `json:"ticker"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"error"`
	Err     error     `json:"-"`
}

// NewAnalysisError builds an AnalysisError wrapping err.
func NewAnalysisError(ticker string, kind ErrorKind, err error) *AnalysisError {
	msg := string(kind)
	if err != nil {
		msg = err.Error()
	}
	return &AnalysisError{Ticker: ticker, Kind: kind, Message: msg, Err: err}
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis %s: %s: %s", e.Ticker, e.Kind, e.Message)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is of a kind the pipeline recovers from
// locally. Source and scoring failures are retryable; everything else is fatal.
func (e *AnalysisError) Retryable() bool {
	return e.Kind == KindSourceFetch || e.Kind == KindScoring
}

// AnalysisOutcome holds exactly one of Result or Err.
type AnalysisOutcome struct {
	Result *AnalysisResult
	Err    *AnalysisError
}

func Success(r *AnalysisResult) AnalysisOutcome { return AnalysisOutcome{Result: r} }

func Failure(e *AnalysisError) AnalysisOutcome { return AnalysisOutcome{Err: e} }

// OK reports whether the outcome carries a result.
func (o AnalysisOutcome) OK() bool { return o.Err == nil && o.Result != nil }

// Ticker returns the ticker of whichever variant is set.
func (o AnalysisOutcome) Ticker() string {
	if o.Result != nil {
		return o.Result.Ticker
	}
	if o.Err != nil {
		return o.Err.Ticker
	}
	return ""
}

// MarshalJSON writes either the result or the error shape, never both.
func (o AnalysisOutcome) MarshalJSON() ([]byte, error) {
	if o.Err != nil {
		return json.Marshal(o.Err)
	}
	if o.Result == nil {
		return []byte("null"), nil
	}
	return json.Marshal(o.Result)
}
