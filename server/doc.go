// Package server implements the authorization server logic: issuing and
// exchanging authorization codes, minting and rotating token pairs, and
// validating and revoking tokens. It coordinates the storage backends and the
// identity provider; HTTP concerns live in the root package.
package server
