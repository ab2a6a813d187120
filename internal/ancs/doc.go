// Package ancs implements the wire formats of the Apple Notification Center Service.
//
// It covers:
//   - the fixed 8-byte Notification Source event record
//   - Control Point command encoding (Get Notification Attributes, Get App Attributes,
//     Perform Notification Action)
//   - Data Source attribute response decoding, including reassembly of responses that
//     span several GATT notifications
//
// All codecs are pure functions over byte slices; nothing in this package talks to a
// Bluetooth stack.
package ancs
