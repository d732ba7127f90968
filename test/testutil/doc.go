// Package testutil holds assertion helpers shared by the package tests.
//
// For embedded NATS servers use github.com/arloliu/partigroup/testing.
package testutil
