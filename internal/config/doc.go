// Package config provides configuration loading and validation for the
// voice command service. It handles YAML-based configuration with struct
// validation covering the HTTP boundary, audio windowing, the external
// collaborators and the session store.
package config
