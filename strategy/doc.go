// Package strategy provides assignment strategies.
//
// RoundRobin is the default: members are sorted by id and the member at
// index i owns every partition j with j mod N == i. Every member computes
// the same answer from the same membership snapshot, and partition counts
// per member differ by at most one.
package strategy
