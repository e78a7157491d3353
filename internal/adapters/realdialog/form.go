// Package realdialog provides a TUI-based DialogProvider using charmbracelet/huh.
package realdialog

import (
	"errors"
	"strconv"
	"strings"

	"github.com/acolita/sftpfs/internal/ports"
	"github.com/charmbracelet/huh"
)

// Provider implements ports.DialogProvider with a huh form on the controlling terminal.
type Provider struct {
	// run executes the form; replaced in tests.
	run func(*huh.Form) error
}

// New returns a new TUI dialog provider.
func New() *Provider {
	return &Provider{run: func(f *huh.Form) error { return f.Run() }}
}

// SiteConfigForm shows the site form pre-filled from prefill.
func (p *Provider) SiteConfigForm(prefill ports.SiteFormData) (ports.SiteFormData, error) {
	result := withDefaults(prefill)
	portStr := strconv.Itoa(result.Port)

	var confirmed bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Site Name").
				Description("Short name for this SFTP site (e.g., 'media', 'backup')").
				Value(&result.Name),

			huh.NewInput().
				Title("Host").
				Description("SFTP hostname or IP address").
				Value(&result.Host),

			huh.NewInput().
				Title("Port").
				Description("SSH port").
				Value(&portStr).
				Validate(validatePort),

			huh.NewInput().
				Title("User").
				Description("SSH username").
				Value(&result.User),

			huh.NewInput().
				Title("Root").
				Description("Remote directory exposed as '/'").
				Value(&result.Root),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Authentication").
				Options(
					huh.NewOption("Password", "password"),
					huh.NewOption("Public key", "publickey"),
					huh.NewOption("SSH agent", "agent"),
				).
				Value(&result.AuthMethod),

			huh.NewInput().
				Title("Password Env Var").
				Description("Environment variable holding the password (password auth)").
				Value(&result.PasswordEnv),

			huh.NewInput().
				Title("Public Key Path").
				Value(&result.PublicKey),

			huh.NewInput().
				Title("Private Key Path").
				Value(&result.PrivateKey),

			huh.NewInput().
				Title("Passphrase Env Var").
				Description("Environment variable holding the key passphrase (optional)").
				Value(&result.PassphraseEnv),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this site?").
				Value(&confirmed),
		),
	)

	if err := p.run(form); err != nil {
		return prefill, err
	}

	port, err := parsePort(portStr)
	if err != nil {
		port = 22
	}
	result.Port = port
	result.Confirmed = confirmed

	return result, nil
}

// SecretPrompt reads a secret with a masked input field.
func (p *Provider) SecretPrompt(title string) (string, error) {
	var secret string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				EchoMode(huh.EchoModePassword).
				Value(&secret).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("value cannot be empty")
					}
					return nil
				}),
		),
	)
	if err := p.run(form); err != nil {
		return "", err
	}
	return secret, nil
}

func withDefaults(d ports.SiteFormData) ports.SiteFormData {
	if d.Port == 0 {
		d.Port = 22
	}
	if d.Root == "" {
		d.Root = "/"
	}
	if d.AuthMethod == "" {
		d.AuthMethod = "password"
	}
	if d.PublicKey == "" && d.PrivateKey != "" {
		d.PublicKey = d.PrivateKey + ".pub"
	}
	return d
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, strconv.ErrRange
	}
	return port, nil
}

func validatePort(s string) error {
	_, err := parsePort(s)
	return err
}

var _ ports.DialogProvider = (*Provider)(nil)
