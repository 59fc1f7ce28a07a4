// Package config defines the configuration for a geocast device.
//
// Regardless of how geocast is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, geocast relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  priv_key // (optional) a plain text file containing the raw private key (cf. geocast keygen).
//  geocast.toml // (optional) configuration values, overridden by command line flags.
//  cert.pem, key.pem // (optional) the TLS certificate and key of the broker.
package config
