// Package util provides small shared helpers that don't fit into
// domain-specific packages.
package util
