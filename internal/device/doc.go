// Package device defines the Bluetooth Low Energy (BLE) boundary of the heart-rate monitor.
//
// This package provides:
//   - The Capability interface the core uses to drive the BLE stack
//     (scan, connect, service/characteristic discovery, notifications)
//   - The asynchronous events a Capability delivers back
//   - Connection states, discovered devices and structured connection errors
//   - UUID normalisation shared by the stack adapters and the core
package device
