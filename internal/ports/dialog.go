package ports

// SiteFormData holds the result of a site configuration form.
type SiteFormData struct {
	Name          string
	Host          string
	Port          int
	User          string
	Root          string
	AuthMethod    string
	PublicKey     string
	PrivateKey    string
	PasswordEnv   string
	PassphraseEnv string
	Confirmed     bool
}

// DialogProvider abstracts interactive user dialogs.
type DialogProvider interface {
	// SiteConfigForm shows a form to confirm/edit a site profile.
	// Pre-filled values come from prefill; Confirmed reports whether the user accepted.
	SiteConfigForm(prefill SiteFormData) (SiteFormData, error)

	// SecretPrompt asks for a password or passphrase without echoing it.
	SecretPrompt(title string) (string, error)
}
