package config

import "github.com/acolita/sftpfs/internal/ports"

// SiteFromForm builds a profile from the interactive site form.
func SiteFromForm(d ports.SiteFormData) SiteConfig {
	return SiteConfig{
		Name: d.Name,
		Host: d.Host,
		Port: d.Port,
		User: d.User,
		Root: d.Root,
		Auth: AuthConfig{
			Method:        d.AuthMethod,
			PasswordEnv:   d.PasswordEnv,
			PublicKey:     d.PublicKey,
			PrivateKey:    d.PrivateKey,
			PassphraseEnv: d.PassphraseEnv,
		},
	}
}

// FormData returns the profile as form prefill values.
func (s SiteConfig) FormData() ports.SiteFormData {
	return ports.SiteFormData{
		Name:          s.Name,
		Host:          s.Host,
		Port:          s.Port,
		User:          s.User,
		Root:          s.Root,
		AuthMethod:    s.Auth.Method,
		PublicKey:     s.Auth.PublicKey,
		PrivateKey:    s.Auth.PrivateKey,
		PasswordEnv:   s.Auth.PasswordEnv,
		PassphraseEnv: s.Auth.PassphraseEnv,
	}
}
