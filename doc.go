// Package authcore implements the token and session lifecycle core of a
// multi-tenant SaaS backend: credential verification, access/refresh token
// issuance, Redis-backed session records with revocation semantics, and an
// optional TOTP + backup-code second factor.
//
// The package is transport-agnostic. HTTP routing, request validation and
// rate limiting live in the caller; the caller hands authcore a
// [CredentialStore] for user records and a Redis client for session state,
// and drives everything through a [Service] built with [New]:
//
//	svc, err := authcore.New().
//		WithRedis(rdb).
//		WithCredentialStore(users).
//		WithConfig(cfg).
//		Build()
//
// Refresh tokens are stateful: a signed refresh JWT is only honored while
// its backing record exists in Redis. Deleting the record (logout, revoke,
// revoke-all, password change) is the sole revocation mechanism; the JWT
// itself stays cryptographically valid until expiry and is rejected anyway.
package authcore
