// Package device holds the locally mirrored view of the receiver's state.
//
// This package manages:
//   - The authoritative property→value mirror for one connection
//   - Change notifications, delivered in apply order
//   - The explicit Unknown state for properties not yet observed
//   - Persistence of observed state transitions (SQLite history)
//
// # State Model
//
// Every property starts Unknown and becomes known only when a decoded
// event from the receiver is applied. The store never invents values. On
// disconnect the connection manager resets the store back to all-Unknown,
// since the device may have changed state while the link was down.
//
// # Notification Contract
//
// Subscribers are notified exactly once per actual value transition
// (including unknown→known), in the order changes were applied.
// Notifications are dispatched from a dedicated goroutine through a
// bounded queue so a slow subscriber can never stall the read loop; if
// the queue overflows, changes are dropped and counted.
package device
