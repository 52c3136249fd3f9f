package http

import "time"

// Common JSON keys
const (
	JSONKeyError    = "error"
	JSONKeyDecision = "decision"
	JSONKeySelected = "selected"
	JSONKeyCount    = "count"
	JSONKeyNetworks = "networks"
)

// Error texts
const (
	HTTPErrorInvalidJSONText      = "invalid JSON"
	HTTPErrorInvalidAddressText   = "invalid address"
	HTTPErrorInvalidChainIDText   = "invalid chainId"
	HTTPErrorInvalidSignatureText = "invalid signature"
	HTTPErrorUnsupportedChainText = "unsupported chain"
	HTTPErrorNotAuthorizedText    = "wallet session is not authorized"
	HTTPErrorNoLocalSignerText    = "no local signer configured"
	HTTPErrorSignerMismatchText   = "local signer does not own the challenged address"
	HTTPErrorJobNotFoundText      = "burn job not found"
	HTTPErrorNothingSelectedText  = "nothing selected"
	HTTPErrorAssetsLoadFailedText = "failed to load assets"
)

// Burn stream message types
const (
	StreamMessageStep = "step"
	StreamMessageDone = "done"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamReadLimit    = 512

	balanceDisplayDecimals = 6
)
