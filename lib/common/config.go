package common

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Command line configuration struct
// --------------------------------------------------------------------------

// Config holds the settings shared by all prefkv commands.
type Config struct {
	// DataFile is the snapshot file of the preference store. Empty means memory only.
	DataFile string
	// Watch reloads the data file when another process changes it
	Watch bool

	// Qualifier is the default qualifier for preference keys
	Qualifier string

	// BackgroundWorkers limits the background pool. Zero means unlimited.
	BackgroundWorkers int

	// TimeoutSecond bounds blocking reads issued by the commands
	TimeoutSecond int64

	// Metrics prints the collected metrics after a command finished
	Metrics bool

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	dataFile := c.DataFile
	if dataFile == "" {
		dataFile = "(memory only)"
	}

	addSection("Store")
	addField("Data File", dataFile)
	addField("Watch", fmt.Sprintf("%t", c.Watch))

	addSection("Preferences")
	addField("Qualifier", c.Qualifier)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Execution")
	workers := "unlimited"
	if c.BackgroundWorkers > 0 {
		workers = fmt.Sprintf("%d", c.BackgroundWorkers)
	}
	addField("Background Workers", workers)

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	addField("Metrics", fmt.Sprintf("%t", c.Metrics))

	return sb.String()
}
