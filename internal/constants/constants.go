package constants

const (
	AppName    = "destructor"
	WalletFile = "wallet.json"
	ConfigFile = "config.yaml"

	// EnvPrefix scopes environment overrides (DESTRUCTOR_ALCHEMY_KEY, DESTRUCTOR_ENV, ...).
	EnvPrefix = "DESTRUCTOR"

	SchemaV1      = 1
	FilePerm      = 0o600
	DirectoryPerm = 0o700

	// BurnProxyAddress is the deployed BurnFi proxy exposing burnTokens(address[],uint256[]).
	BurnProxyAddress = "0x9b9FEe4532170621b1016035617F320d7B2f9B8F"

	UnknownTokenName   = "Unknown token"
	UnknownTokenSymbol = "???"
	PlaceholderLogo    = "/favicon.ico"

	DefaultDecimals = 18

	// AAD const for the local signing key envelope
	AADConstant = "destructor:wallet:v1"
)

// SpamKeywords is the default display-name heuristic used when a provider does not flag spam itself.
var SpamKeywords = []string{"spam", "scam", "fraud", "rugpull"}
