// Package job runs named units of work asynchronously and keeps their
// progress as an append-only, streamable log.
//
// Every job moves Created -> Running -> one of Success, Failed or Cancelled.
// The terminal transition appends exactly one terminal record followed by
// an EOF record, and nothing is appended afterwards. Readers obtained from
// Registry.Follow replay the log and then tail it until EOF.
package job
