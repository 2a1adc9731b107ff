// avrmon - interactive receiver monitor
//
// A small diagnostic tool that opens a control session to an Anthem
// x00-series receiver and prints every state transition as it happens.
// Useful for verifying cabling and gateway setup before deploying the
// full bridge.
//
// Usage:
//
//	avrmon --host 192.168.1.50 [--port 14999] [--power-on] [--json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quiethouse/avrbridge/internal/avr"
	"github.com/quiethouse/avrbridge/internal/device"
	"github.com/quiethouse/avrbridge/internal/protocol"
)

func main() {
	host := flag.String("host", "", "receiver address (required)")
	port := flag.Int("port", 14999, "receiver control port")
	powerOn := flag.Bool("power-on", false, "switch the main zone on after connecting")
	jsonOut := flag.Bool("json", false, "print transitions as JSON lines")
	timeout := flag.Duration("timeout", 10*time.Second, "dial timeout")
	flag.Parse()

	if *host == "" {
		fmt.Fprintln(os.Stderr, "avrmon: --host is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *host, *port, *timeout, *powerOn, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "avrmon: %v\n", err)
		os.Exit(1)
	}
}

// transition is the JSON shape emitted with --json.
type transition struct {
	Property    string `json:"property"`
	Value       string `json:"value,omitempty"`
	Display     string `json:"display,omitempty"`
	Known       bool   `json:"known"`
	Invalidated bool   `json:"invalidated,omitempty"`
	Timestamp   string `json:"timestamp"`
}

func run(ctx context.Context, host string, port int, timeout time.Duration, powerOn, jsonOut bool) error {
	client, err := avr.New(avr.Config{
		Host:           host,
		Port:           port,
		ConnectTimeout: timeout,
		AutoReconnect:  true,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	enc := json.NewEncoder(os.Stdout)

	unsubState := client.OnStateChange(func(s avr.ConnState) {
		if !jsonOut {
			fmt.Printf("%s  link: %s\n", time.Now().Format(time.TimeOnly), s)
		}
	})
	defer unsubState()

	unsub := client.OnChange(func(ch device.Change) {
		if jsonOut {
			display, _ := ch.Property.ValueName(ch.Value.Raw)
			enc.Encode(transition{
				Property:    string(ch.Property),
				Value:       ch.Value.Raw,
				Display:     display,
				Known:       ch.Value.Known,
				Invalidated: ch.Invalidated,
				Timestamp:   time.Now().UTC().Format(time.RFC3339),
			})
			return
		}

		if ch.Invalidated {
			fmt.Printf("%s  state invalidated (connection lost)\n", time.Now().Format(time.TimeOnly))
			return
		}

		display, _ := ch.Property.ValueName(ch.Value.Raw)
		if display != "" {
			fmt.Printf("%s  %s = %s (%s)\n", time.Now().Format(time.TimeOnly), ch.Property.Description(), ch.Value.Raw, display)
		} else {
			fmt.Printf("%s  %s = %s\n", time.Now().Format(time.TimeOnly), ch.Property.Description(), ch.Value.Raw)
		}
	})
	defer unsub()

	if !jsonOut {
		fmt.Printf("connecting to %s:%d ...\n", host, port)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if powerOn {
		cmdCtx, cmdCancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.SetPower(cmdCtx, true)
		cmdCancel()
		if err != nil {
			return fmt.Errorf("power on: %w", err)
		}
	}

	<-ctx.Done()

	if !jsonOut {
		printSnapshot(client.Snapshot())
	}
	return nil
}

// printSnapshot dumps the final state mirror on exit.
func printSnapshot(snap map[protocol.Property]device.Value) {
	fmt.Println("\nfinal state:")
	for _, p := range protocol.Properties() {
		v, ok := snap[p]
		if !ok || !v.Known {
			fmt.Printf("  %-12s unknown\n", p.Description())
			continue
		}
		if name, ok := p.ValueName(v.Raw); ok && name != "" {
			fmt.Printf("  %-12s %s (%s)\n", p.Description(), v.Raw, name)
		} else {
			fmt.Printf("  %-12s %s\n", p.Description(), v.Raw)
		}
	}
}
