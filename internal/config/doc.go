// Package config holds the options of a fetch run and loads them from a YAML
// file, .env files and the environment. Precedence, lowest first: built-in
// defaults, the YAML file, the environment, explicit CLI flags.
package config
