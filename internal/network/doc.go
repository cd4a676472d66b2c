// Package network checks that an IMD can be reached before any API call is
// made, and waits for it to come back after a reboot.
package network
