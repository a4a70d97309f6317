// Package config handles YAML configuration loading with environment
// variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation. See configs/recorder.example.yaml for the schema.
package config
