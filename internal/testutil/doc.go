// Package testutil provides shared helpers for planvault tests: plan corpus
// and archive fixtures, a fault-injecting filesystem, and container backed
// object stores for integration tests.
package testutil
