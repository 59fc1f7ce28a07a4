package mobile

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/mosaicnetworks/geocast/src/crypto/keys"
)

// GetPrivDeviceID generates a new key and returns it in the following
// formatted string <device id>=!@#@!=<private key hex>.
func GetPrivDeviceID() string {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		fmt.Println("Error generating new key")
		os.Exit(2)
	}

	priv := keys.PrivateKeyHex(key)
	id := keys.DeviceID(&key.PublicKey)

	return id + "=!@#@!=" + priv
}

// GetDeviceID returns the device id of the given private key, or an empty
// string if the key cannot be parsed.
func GetDeviceID(privKey string) string {

	trimmedKeyString := strings.TrimSpace(privKey)
	key, err := hex.DecodeString(trimmedKeyString)
	if err != nil {
		return ""
	}

	privateKey, err := keys.ParsePrivateKey(key)
	if err != nil {
		return ""
	}

	return keys.DeviceID(&privateKey.PublicKey)
}
