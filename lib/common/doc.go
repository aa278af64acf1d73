// Package common holds the ambient pieces shared by all prefkv packages and
// commands: the logger factory installed into dragonboats logger package, the
// command configuration and the metric counters.
package common
