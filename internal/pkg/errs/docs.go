// Package errs provides the typed errors shared across the dispatch core.
//
// Every error kind follows the same shape:
//   - a sentinel (ErrObjectNotFound, ErrValueIsInvalid, ...) to match with errors.Is
//   - a struct carrying the details of one occurrence
//   - constructors with and without an underlying cause
//   - Error() for formatting and Unwrap() returning the sentinel
//
// Domain packages build their own sentinels on top of these (for example the
// order package reports an unknown status as a ValueIsInvalidError) so callers
// can classify failures without string matching.
package errs
