// Package taskdef describes processing tasks: their identity, where they were
// found, the ordered stages they run, the stages their run configuration must
// declare, and the schema their task settings follow.
//
// Definitions are parsed from TOML or YAML definition files and are immutable
// once built. The registry package decides which definition is effective for
// a name; this package only knows how to read and check one.
package taskdef
