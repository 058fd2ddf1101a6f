// Package retry provides exponential backoff retry logic for transient failures.
//
// [WithExponentialBackoff] retries an operation until it succeeds, returns an
// error marked with [Fatal], the attempts run out, or the context ends. It
// guards secret store writes that can lose a check-and-set race.
package retry
