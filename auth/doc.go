// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides credentials, session tokens, roles and signing helpers.

# Passwords

Passwords are stored as bcrypt hashes:

	hash, err := auth.HashPassword(pw) // rejects passwords shorter than 8
	ok := auth.CheckPassword(hash, pw)

# Sessions

Sessions are HS256 JWTs whose jti is a row in the sessions table:

	sessions := auth.NewSessions(store, cfg.SessionSecret, cfg.SessionTTL)
	token, expiresAt, err := sessions.Issue(ctx, user, ip, userAgent)
	user, sessionID, err := sessions.Validate(ctx, token)

Validate rejects tokens that are badly signed, expired, revoked, or belong to
a deactivated user. Revoke and RevokeAllForUser end sessions early.

# Signing

HMAC-SHA256 signatures over "|"-joined parts, used for e-file signatures:

	sig := auth.Sign(secret, fileID, userID, contentHash, signedAt)
	ok := auth.Verify(secret, sig, fileID, userID, contentHash, signedAt)

ContentHash fingerprints the signed content.

# Roles

  - admin: user, region and reference-data management
  - engineer: raises work requests
  - clerk: e-filing desk
  - ce, coo, ceo: the approval chain (executives)
*/
package auth
