// Package process provides platform-specific helpers for running the
// validator as an isolated process tree that can be killed as a unit.
package process
