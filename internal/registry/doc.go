// Package registry maps watched directories and rendered source files to
// durable rows.
//
// DirectoryRegistry.EnsureRegistered is idempotent: concurrent callers for
// the same directory all receive the identifier of the single winning row.
// FileRegistry guards against recording the same source file twice.
package registry
