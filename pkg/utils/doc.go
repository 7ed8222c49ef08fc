// Package utils provides small helpers shared across lorekeeper packages:
// vector similarity for the resolution stores and panic recovery for the
// pipeline's per-chunk isolation.
package utils
