package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/acolita/sftpfs/internal/config"
	"github.com/acolita/sftpfs/internal/ports"
	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSiteTools() {
	s.mcpServer.AddTool(sftpSiteAddTool(), s.handleSiteAdd)
}

func sftpSiteAddTool() mcp.Tool {
	return mcp.NewTool("sftp_site_add",
		mcp.WithDescription(`Add an SFTP site profile interactively.

Opens a form on the user's terminal, pre-filled with the given values, to
confirm and edit the profile before it is saved. Credentials are referenced by
environment variable name and never pass through this tool.

The site is usable immediately after saving.
Requires a config file path (--config flag at startup).`),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Short name for the site (e.g., 'reports', 'backup')"),
		),
		mcp.WithString("host",
			mcp.Required(),
			mcp.Description("SFTP hostname or IP address"),
		),
		mcp.WithNumber("port",
			mcp.Description("SSH port (default: 22)"),
		),
		mcp.WithString("user",
			mcp.Required(),
			mcp.Description("SSH username"),
		),
		mcp.WithString("root",
			mcp.Description("Remote folder that '/' maps to (default: '/')"),
		),
		mcp.WithString("auth_method",
			mcp.Description("'password' (default), 'publickey' or 'agent'"),
		),
		mcp.WithString("private_key",
			mcp.Description("Path to the private key for publickey auth (user can set in form)"),
		),
	)
}

func (s *Server) handleSiteAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.configPath == "" {
		return mcp.NewToolResultError(
			"No config file path set. Start the server with --config flag to enable site management.",
		), nil
	}

	name := mcp.ParseString(req, "name", "")
	host := mcp.ParseString(req, "host", "")
	user := mcp.ParseString(req, "user", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	if host == "" {
		return mcp.NewToolResultError("host is required"), nil
	}
	if user == "" {
		return mcp.NewToolResultError("user is required"), nil
	}

	prefill := ports.SiteFormData{
		Name:       name,
		Host:       host,
		Port:       mcp.ParseInt(req, "port", 22),
		User:       user,
		Root:       mcp.ParseString(req, "root", "/"),
		AuthMethod: mcp.ParseString(req, "auth_method", "password"),
		PrivateKey: mcp.ParseString(req, "private_key", ""),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.config.Site(name); err == nil {
		return mcp.NewToolResultError(fmt.Sprintf("site %q already exists in config", name)), nil
	}

	slog.Info("showing site config form", slog.String("site", name))

	result, err := s.dialogProvider.SiteConfigForm(prefill)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("dialog error: %v", err)), nil
	}

	if !result.Confirmed {
		slog.Info("site configuration cancelled by user", slog.String("site", name))
		return jsonResult(map[string]any{
			"status":  "cancelled",
			"message": "User cancelled the configuration",
		})
	}

	site := config.SiteFromForm(result)
	updated := *s.config
	updated.Sites = append([]config.SiteConfig(nil), s.config.Sites...)
	if err := updated.AddSite(site); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("add site: %v", err)), nil
	}
	if err := updated.Validate(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid site: %v", err)), nil
	}
	if err := config.Save(&updated, s.configPath, s.fs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save config: %v", err)), nil
	}
	s.config = &updated

	slog.Info("site configuration saved",
		slog.String("site", site.Name),
		slog.String("host", site.Host),
		slog.String("config_path", s.configPath),
	)

	return jsonResult(map[string]any{
		"status":      "saved",
		"site":        site.Name,
		"host":        site.Host,
		"port":        site.Port,
		"user":        site.User,
		"root":        site.Root,
		"auth_method": site.Auth.Method,
		"config_path": s.configPath,
	})
}
