// Package errors provides the classified error primitives used across sitegen.
//
// A ClassifiedError carries a category (what kind of failure), a severity (how far the
// failure reaches: one file, one pass, the whole process) and a small context map used
// for structured logging. Errors are built with a fluent builder:
//
//	err := errors.FileSystemError("read page").
//		WithCause(ioErr).
//		WithContext("path", path).
//		Build()
//
// Adapters map categories onto CLI exit codes and HTTP status codes.
package errors
