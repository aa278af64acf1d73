// Package util holds helpers shared by the prefkv commands: help text
// wrapping, flag and environment configuration and opening the store.
package util
