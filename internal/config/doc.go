// Package config resolves the settings of an imd-cfg run and keeps the
// history of configured IMDs.
//
// # Settings
//
// Settings are layered with viper, lowest priority first:
//
//   - built-in defaults (SetDefaults)
//   - config.yaml or config.json in the config directory, or the file given
//     with --config
//   - IMDCFG_* environment variables (IMDCFG_IP, IMDCFG_RETRIES, ...)
//   - command line flags bound to the same keys
//
// The config directory defaults to $XDG_CONFIG_HOME/imd-cfg and holds the
// prompts file, the saved session state and history.yaml. Downloaded
// firmware is cached under $XDG_CACHE_HOME/imd-cfg/firmware.
//
// # History
//
// history.yaml records one entry per configuration run: hostname, address,
// firmware version and the non-secret values that were sent. The last
// entry seeds the next-hostname guess. Writes are atomic.
package config
