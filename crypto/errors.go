package crypto

import "errors"

var (
	errInvalidKeyLength = errors.New("crypto: invalid key length")
	errPointNotOnCurve  = errors.New("crypto: public key point is not on curve")
)
