package config

import "os"

// ExpandEnv expands environment variables in YAML content using the
// standard library's shell-style substitution. Supports both ${VAR} and
// $VAR syntax.
//
// Missing variables expand to an empty string; validation is responsible
// for rejecting required fields left empty this way.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
