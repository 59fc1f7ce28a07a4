// Package keys implements the device keys of geocast.
//
// A device that is not given an explicit DeviceId derives one from a
// secp256k1 key-pair: the DeviceId is "0x" followed by the upper-case hex of
// the compressed public key. The private key is kept in a plain text file in
// the data directory (cf. geocast keygen) so that a device keeps the same
// DeviceId across restarts. Keys are not used to sign or encrypt messages.
package keys
