// Package registry discovers task definitions from the built-in catalog and
// a workspace directory and resolves names to a single effective definition.
//
// A workspace definition replaces a built-in definition of the same name;
// each replacement is reported as an Override. Files that decode but carry
// no task are Skipped; files that fail to decode or validate are Invalid.
// Discovery never fails as a whole and never caches.
package registry
