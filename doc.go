// Package singleton builds namespace instances and loads the stylesheets and
// scripts they declare into a host document.
//
// It offers:
// - an instance factory (Runtime.Singleton, Runtime.Define) with child namespaces and method tables
// - per-instance dependency descriptors for stylesheets and scripts
// - a dependency registry owned by an explicitly constructed Runtime
// - fan-out of one-shot lifecycle hooks once declared scripts have loaded
// - admission of pending instances under a configurable concurrency limit
// - namespace graph export (DOT / Mermaid)
package singleton
