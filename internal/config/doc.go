// Package config builds the runtime configuration of the agent.
//
// Sources are applied in order, later ones overriding earlier ones:
//  1. built-in defaults (LoadDefaults)
//  2. an optional JSON or YAML file named by -c / -config
//  3. command-line flags (-d, -e, -p, -q, -w, -i, -l)
//
// Durations in files accept Go duration strings ("500ms", "10m") or integer
// nanoseconds. Parse errors panic, matching flag.PanicOnError semantics.
package config
