// Package config provides configuration loading, merging, and validation
// for the notesync engine.
//
// Configuration is assembled from multiple sources in the following priority
// order (an earlier source wins for any field it sets):
//  1. Environment variables
//  2. Command-line flags
//  3. JSON config file
//  4. Built-in defaults
//
// The main entry point is [GetConfig]. The sync section of the resulting
// [Config] is also what the engine persists to its local state store, so a
// host application that reconfigures sync at runtime goes through
// engine.Configure rather than this package.
package config
