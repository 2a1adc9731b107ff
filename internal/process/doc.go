// Package process supervises a child process for the daemon.
//
// The bridge uses it to run a serial-to-TCP gateway (ser2net or
// similar) when the receiver hangs off a local RS-232 port instead of
// a standalone network bridge: the gateway is spawned in its own
// process group, its output is captured into the debug log, crashes
// restart it with doubling backoff, and an optional health check acts
// as a watchdog for hung-but-alive processes.
//
//	mgr := process.NewManager(process.DefaultConfig(
//	    "ser2net",
//	    "/usr/sbin/ser2net",
//	    []string{"-n", "-c", "/etc/ser2net/avrbridge.yaml"},
//	))
//	if err := mgr.Start(ctx); err != nil { ... }
//	defer mgr.Stop()
package process
