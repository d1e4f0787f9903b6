// Package validation provides common validation utilities for configuration
// and descriptor parameters across the threadforge library.
//
// This package offers reusable validation functions that help ensure
// consistent error messages and reduce boilerplate code in constructors
// and descriptor parsers.
package validation
