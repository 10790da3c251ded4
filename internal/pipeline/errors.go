package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFormat indicates the detector could not classify the input.
	ErrUnknownFormat = errors.New("unknown pipeline format")
	// ErrSizeLimitExceeded indicates the input exceeded the configured size ceiling.
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
	// ErrGraphTooLarge indicates the resulting graph exceeded the configured node cap.
	ErrGraphTooLarge = errors.New("graph too large")
)

// SyntaxError reports malformed source under the target grammar.
type SyntaxError struct {
	Line    int
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("syntax error at line %d: %s", e.Line, e.Message)
	}
	return "syntax error: " + e.Message
}

// UnsupportedFeatureError reports a valid construct outside the supported grammar subset.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return "unsupported feature: " + e.Feature
}

// NormalizationError reports a definition that parses but cannot be reconciled into a pipeline.
type NormalizationError struct {
	Reason string
}

func (e *NormalizationError) Error() string {
	return "normalization failed: " + e.Reason
}

// SizeLimitError reports input larger than the allowed ceiling.
type SizeLimitError struct {
	Size  int
	Limit int
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("input is %d bytes, limit is %d", e.Size, e.Limit)
}

func (e *SizeLimitError) Is(target error) bool {
	return target == ErrSizeLimitExceeded
}

// GraphTooLargeError reports a graph with more nodes than allowed.
type GraphTooLargeError struct {
	Nodes int
	Limit int
}

func (e *GraphTooLargeError) Error() string {
	return fmt.Sprintf("graph has at least %d nodes, limit is %d", e.Nodes, e.Limit)
}

func (e *GraphTooLargeError) Is(target error) bool {
	return target == ErrGraphTooLarge
}

// Syntax builds a SyntaxError.
func Syntax(line int, format string, args ...interface{}) error {
	return &SyntaxError{Line: line, Message: fmt.Sprintf(format, args...)}
}

// Unsupported builds an UnsupportedFeatureError.
func Unsupported(format string, args ...interface{}) error {
	return &UnsupportedFeatureError{Feature: fmt.Sprintf(format, args...)}
}

// Normalization builds a NormalizationError.
func Normalization(format string, args ...interface{}) error {
	return &NormalizationError{Reason: fmt.Sprintf(format, args...)}
}
