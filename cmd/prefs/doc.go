// Package prefs implements the preference commands of prefkv: get, set, del,
// list and watch. Reads, writes and watches go through the preference facade
// (lib/pref), del and list work on the store directly.
package prefs
