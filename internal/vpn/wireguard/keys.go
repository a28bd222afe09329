package wireguard

import (
	"fmt"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// GenerateKeypair — пара ключей Curve25519 в base64.
func GenerateKeypair() (privateKey, publicKey string, err error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return "", "", toolErr("generate private key", err)
	}
	return priv.String(), priv.PublicKey().String(), nil
}

func GeneratePresharedKey() (string, error) {
	psk, err := wgtypes.GenerateKey()
	if err != nil {
		return "", toolErr("generate preshared key", err)
	}
	return psk.String(), nil
}

// ParseKey проверяет base64-ключ длиной 32 байта.
func ParseKey(s string) (wgtypes.Key, error) {
	k, err := wgtypes.ParseKey(s)
	if err != nil {
		return wgtypes.Key{}, fmt.Errorf("invalid key: %w", err)
	}
	return k, nil
}
