package model

import "time"

// Shared defaults used by the CLI and its subcommands.
const (
	DefaultDataDir      = "./sad-data"
	DefaultWorkers      = 4
	DefaultQueryTimeout = 30 * time.Second
	DefaultAPIAddr      = "127.0.0.1:3000"
)

// DefaultDatasets lists the dataset codes processed by a full run.
var DefaultDatasets = []string{"bbs", "cbc", "fia", "gentry", "mcdb", "naba"}
