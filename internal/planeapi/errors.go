package planeapi

import "errors"

var (
	errMissingDeviceID = errors.New("planeapi: device_id is required")
	errMissingTokenID  = errors.New("planeapi: token_id is required")
	errMissingUserID   = errors.New("planeapi: user_id is required")
	errBadPublicKey    = errors.New("planeapi: public_key must be a 32-byte Ed25519 key")
	errUnauthenticated = errors.New("planeapi: unauthenticated")
)
