// Example demonstrates driving the embedded overlay engine the way a
// platform network extension would: parse, run, bind, poll, retain.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-i2p/netext/lib/embedded"
)

const configDoc = `
[instance]
name = "example"
mtu = 1420

[network]
private_key = "SET_ME_TO_A_BASE64_CURVE25519_KEY"
listen_port = 51820
tunnel_ip = "10.42.0.2"
subnet = "10.42.0.0/16"
`

func main() {
	engine := embedded.New()
	defer engine.Close(context.Background())

	go handleEvents(engine)

	runInstance(engine)
	bindDevice(engine)
	printStatus(engine)
	waitForShutdown()

	if err := engine.StopAll(context.Background()); err != nil {
		log.Fatalf("Shutdown failed: %v (last error: %s)", err, engine.LastError())
	}
}

// handleEvents processes engine events in the background.
func handleEvents(engine *embedded.Engine) {
	for event := range engine.Events() {
		switch event.Type {
		case embedded.EventError:
			fmt.Printf("⚠️  Error: %v\n", event.Error)
		default:
			fmt.Printf("📢 %s: %s %s\n", event.Type, event.Instance, event.Message)
		}
	}
}

// runInstance validates the document and registers the instance.
func runInstance(engine *embedded.Engine) {
	ctx := context.Background()
	if err := engine.ParseConfig(configDoc); err != nil {
		log.Fatalf("Invalid configuration: %s", engine.LastError())
	}
	if err := engine.RunInstance(ctx, "example", configDoc); err != nil {
		log.Fatalf("Failed to run instance: %s", engine.LastError())
	}
}

// bindDevice binds a host-provided TUN descriptor if one was passed via
// the TUN_FD environment variable. Without one the instance stays created
// until the host supplies a device.
func bindDevice(engine *embedded.Engine) {
	raw := os.Getenv("TUN_FD")
	if raw == "" {
		fmt.Println("No TUN_FD set; instance waits for a device")
		return
	}
	fd, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("Bad TUN_FD %q: %v", raw, err)
	}
	if err := engine.SetTunFd(context.Background(), "example", fd); err != nil {
		log.Fatalf("Failed to bind device: %s", engine.LastError())
	}
}

// printStatus prints every registered instance's status.
func printStatus(engine *embedded.Engine) {
	snaps, err := engine.CollectInfo(16)
	if err != nil {
		log.Fatalf("Failed to collect status: %s", engine.LastError())
	}
	fmt.Printf("\n=== Instances ===\n")
	for _, snap := range snaps {
		fmt.Printf("%-12s %-8s up %s\n", snap.Name, snap.State, snap.Uptime())
	}
}

// waitForShutdown waits for a shutdown signal.
func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Println("\nPress Ctrl+C to stop...")
	<-sigCh

	fmt.Println("\nShutting down...")
}
