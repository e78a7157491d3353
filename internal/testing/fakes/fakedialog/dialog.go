// Package fakedialog provides a test fake for ports.DialogProvider.
package fakedialog

import "github.com/acolita/sftpfs/internal/ports"

// Provider is a controllable fake DialogProvider for testing.
type Provider struct {
	// Result is the form data returned by SiteConfigForm.
	Result ports.SiteFormData
	// Err is the error returned by SiteConfigForm.
	Err error
	// Called tracks whether SiteConfigForm was invoked.
	Called bool
	// ReceivedPrefill captures the prefill data passed to SiteConfigForm.
	ReceivedPrefill ports.SiteFormData

	// Secret and SecretErr are returned by SecretPrompt.
	Secret    string
	SecretErr error
	// Prompts records the titles passed to SecretPrompt.
	Prompts []string
}

// New returns a new fake dialog provider.
func New() *Provider {
	return &Provider{}
}

// SiteConfigForm returns the pre-configured Result and Err.
func (p *Provider) SiteConfigForm(prefill ports.SiteFormData) (ports.SiteFormData, error) {
	p.Called = true
	p.ReceivedPrefill = prefill
	if p.Err != nil {
		return prefill, p.Err
	}
	return p.Result, nil
}

// SecretPrompt returns the pre-configured Secret and SecretErr.
func (p *Provider) SecretPrompt(title string) (string, error) {
	p.Prompts = append(p.Prompts, title)
	if p.SecretErr != nil {
		return "", p.SecretErr
	}
	return p.Secret, nil
}

var _ ports.DialogProvider = (*Provider)(nil)
