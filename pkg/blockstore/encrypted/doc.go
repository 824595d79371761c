// Package encrypted implements the authenticated-encryption layer of
// the block-store stack. It sits directly below the integrity layer:
// every plaintext handed to it already carries the integrity header,
// and every blob it returns on load still carries that header for the
// integrity layer to verify.
package encrypted
