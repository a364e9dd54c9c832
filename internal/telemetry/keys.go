package telemetry

import "golang.zx2c4.com/wireguard/wgctrl/wgtypes"

// parseKeyPublic derives a peer's public key (as the wg tool reports
// it) from its stored private key, so dump output keyed by public key
// can be mapped back to the local peer UUID.
func parseKeyPublic(privateKeyBase64 string) (string, error) {
	k, err := wgtypes.ParseKey(privateKeyBase64)
	if err != nil {
		return "", err
	}
	return k.PublicKey().String(), nil
}
