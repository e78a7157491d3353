package mcp

// Common parameter descriptions and messages used across MCP tools.
const (
	descSite       = "Configured site name (default: the first site in the config file)"
	descIdentifier = "Path under the site root, starting with '/'"

	errIdentifierRequired = "identifier is required"

	// maxContentSize caps how much sftp_read returns inline.
	maxContentSize = 1024 * 1024

	encodingText   = "text"
	encodingBase64 = "base64"
)
