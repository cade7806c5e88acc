// Package jwt issues and reads the access tokens exchanged with the auth
// backend.
//
// The client never verifies signatures: it only decodes the claims of a
// token it already holds to restore the signed-in user after a restart
// ([ParseUnverified]). Signing and verification ([Manager]) exist for the
// local development backend and for tests.
package jwt
