package security

const (
	errKeyringNotAvailable = "keyring not available"
	keyPassphraseFmt       = "passphrase:%s"
	keyServerFmt           = "server:%s@%s:%d"
)
