// Package async provides utilities for parallel task execution with
// error collection.
//
// [RunParallel] executes independent lookups concurrently and returns every
// failure, so a request resolving several registries and clusters reports
// all unresolved names at once.
package async
