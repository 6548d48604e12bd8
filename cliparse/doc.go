// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line flags and configuration.

# Configuration

Flags are registered on a pflag set and bound to viper, which also reads
PORTAL_* environment variables:

	v := cliparse.NewViper()
	cliparse.BindFlags(cmd.PersistentFlags(), v)
	cfg, err := cliparse.Load(v)

ParseFlags does all three for a plain argument list.

# Config Fields

  - Port: Server listen port (default: 3318)
  - DatabaseURL, DatabaseType: sqlite (default) or postgres
  - SessionSecret, SessionTTL: Session tokens and e-file signatures
  - MediaDir, MaxImageSize, MaxVideoSize, ChunkSize, UploadExpiry: Media store
  - CEOApprovalThreshold: Cost above which a request needs the CEO
  - PublicBaseURL: Prefix for media URLs
  - LogLevel, LogFormat: Logger settings
  - LoginRate: Login attempts per minute per client IP

Sizes accept human-readable values such as "10MB" or "1.5GiB".

# Environment Variables

Each flag maps to PORTAL_ plus its upper-cased name with dashes as
underscores:

	--database-url    → PORTAL_DATABASE_URL
	--session-secret  → PORTAL_SESSION_SECRET
	--max-video-size  → PORTAL_MAX_VIDEO_SIZE

CLI flags take precedence over environment variables. LoadDotEnv fills the
environment from a .env file first without overriding existing variables.

# Validation

Load returns an error if:

  - the database URL is missing or the type is unknown
  - the session secret is missing or shorter than 16 characters
  - a size does not parse or is zero
  - the port, session TTL, threshold or login rate is out of range
*/
package cliparse
