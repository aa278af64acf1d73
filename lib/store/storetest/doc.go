// Package storetest provides test helpers for the store package: Recorder, a
// counting in-memory IStore, and RunStoreTests, a conformance suite every
// IStore implementation in this module runs.
package storetest
