// Package deploy installs services onto clusters.
//
// A Coordinator turns one deploy request into a job, resolves the registries
// and cluster contexts it references and hands one Task per service to the
// Processor. The Processor installs tasks one at a time on a single goroutine
// and is the only writer of Results, which the coordinator polls until every
// service reported or the wait budget ran out.
package deploy
