// Package jwt issues and parses the access tokens whose issued-at claim the
// token-validity cache compares against a user's password epoch.
//
// Signing is Ed25519 by default with HS256 as an option. Every issued token
// carries iat, and parsing rejects tokens without one.
package jwt
