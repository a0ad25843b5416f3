// Package jwt issues and verifies the short-lived access tokens handed out
// next to every refresh token.
//
// Access tokens carry the user id in "sub", the session id in "sid" and the
// caller-supplied roles. They are stateless; revocation is enforced by the
// Engine checking the session record, not by this package.
package jwt
