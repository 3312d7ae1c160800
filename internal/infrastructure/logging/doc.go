// Package logging builds the registry's slog logger.
//
// Entries are JSON by default or text for local use. Each one carries
// service and version. Attributes named password, password_hash, token,
// access_token, authorization or secret are replaced with [REDACTED]
// whatever their case or group. Prefer staff ids over email addresses in
// log attributes.
//
//	logging:
//	  level: info     # debug, info, warn|warning, error
//	  format: json    # json, text
//	  output: stdout  # stdout, stderr
package logging
