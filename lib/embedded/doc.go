// Package embedded provides the host-facing API of the netext overlay engine.
//
// A host application, typically a platform network extension, drives the
// engine through a narrow surface: it submits declarative instance
// configurations, binds its packet device descriptors, reconciles the set of
// running instances, and polls for status and errors. The hard work lives
// behind this surface in the instance manager.
//
// # Quick Start
//
//	engine := embedded.New()
//	defer engine.Close(context.Background())
//
//	if err := engine.RunInstance(ctx, "vpn1", configTOML); err != nil {
//	    log.Fatal(engine.LastError())
//	}
//	if err := engine.SetTunFd(ctx, "vpn1", tunFd); err != nil {
//	    log.Fatal(engine.LastError())
//	}
//
//	snaps, _ := engine.CollectInfo(16)
//	for _, snap := range snaps {
//	    fmt.Println(snap.Name, snap.State)
//	}
//
// # Device ownership
//
// The descriptor passed to SetTunFd stays owned by the host for its whole
// lifetime. The engine registers it for packet I/O while the instance is
// alive and releases its wrapper on stop; it never closes or duplicates the
// descriptor.
//
// # Declarative reconciliation
//
// Hosts that track a desired running set re-submit the full set on every
// change instead of issuing incremental removals:
//
//	engine.Retain(ctx, "vpn1", "vpn2") // everything else is stopped
//
// # Error reporting
//
// Failures return an error and also record a message in the engine's error
// slot, readable via LastError. The slot persists until overwritten by a
// newer failure; it is never cleared by reads or by later successes.
package embedded
