// Package config provides environment-based configuration with validation.
//
// All settings come from AUTHCORE_* environment variables with sane
// defaults; LoadConfig reads and validates them once at startup.
// Validation catches the misconfigurations that would otherwise fail
// at first request: missing identity issuer or audience, colliding
// server and health ports, an archive bucket required by an enabled
// archiver.
package config
