package main

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	Listen    string // overrides [server].listen when set
	NoServer  bool   // run the loop without the status HTTP surface
	Daemonize bool
	PidFile   string
	LogFile   string
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	SnapshotPath string // overrides [supervisor].snapshot_path when set
}
