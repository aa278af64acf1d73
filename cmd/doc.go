// Package cmd implements the command-line interface of prefkv. It provides
// commands to read, write, remove, list and watch typed preferences stored in
// a local snapshot file.
//
// The package is organized into several subpackages:
//
//   - prefs: Commands for preference operations (get, set, del, list, watch)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See prefkv -help for a list of all commands.
package cmd
