// Package capture manages the capture-file lifecycle: day-partitioned
// output paths, rotation of raw captures, conversion to the cracking-ready
// 22000 format, and safe SSID-based renaming. The capture and conversion
// tools themselves are opaque external binaries.
package capture
