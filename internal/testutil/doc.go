// Package testutil provides shared test fixtures and assertion helpers.
package testutil
