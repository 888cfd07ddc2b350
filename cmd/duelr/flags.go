package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags holds the engine selection flags of the run command. Everything
// else is bound straight into viper.
type RunFlags struct {
	Engine1    string
	Engine1Dir string
	Engine2    string
	Engine2Dir string
	RunID      string
}

type ProbeFlags struct {
	URLs    []string
	Timeout time.Duration
}

type DiscoverFlags struct {
	Dir     string
	Pattern string
}

type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Wait       bool
	Interval   time.Duration
}
