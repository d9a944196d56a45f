// Package config loads application settings with viper from defaults, an
// optional config.yaml and BANKCARDS_-prefixed environment variables, and
// validates them with struct tags before any component is built.
package config
