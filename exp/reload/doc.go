// Package reload provides experimental manifest reloading for singleton runtimes.
//
// Reconciler is the core type and performs:
// 1. snapshot every namespace of the new manifest by content hash
// 2. diff against the previous snapshot
// 3. provide newly listed script names
// 4. build added namespaces under their existing parents
// 5. report removed and changed namespaces, which keep running as declared
//
// This package is EXPERIMENTAL and its API may change before v1.
package reload
