package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/acolita/sftpfs/internal/driver"
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(sftpListTool(), s.handleList)
	s.mcpServer.AddTool(sftpStatTool(), s.handleStat)
	s.mcpServer.AddTool(sftpReadTool(), s.handleRead)
	s.mcpServer.AddTool(sftpWriteTool(), s.handleWrite)
	s.mcpServer.AddTool(sftpMkdirTool(), s.handleMkdir)
	s.mcpServer.AddTool(sftpDeleteTool(), s.handleDelete)
	s.mcpServer.AddTool(sftpRenameTool(), s.handleRename)
	s.mcpServer.AddTool(sftpCopyTool(), s.handleCopy)
	s.mcpServer.AddTool(sftpHashTool(), s.handleHash)
	s.mcpServer.AddTool(sftpFingerprintTool(), s.handleFingerprint)
	s.mcpServer.AddTool(sftpSitesTool(), s.handleSites)
	s.registerSiteTools()
}

// Tool definitions

func siteParam() mcp.ToolOption {
	return mcp.WithString("site", mcp.Description(descSite))
}

func sftpListTool() mcp.Tool {
	return mcp.NewTool("sftp_list",
		mcp.WithDescription(`List a folder on an SFTP site.

Returns a JSON array of {"identifier", "type"} entries, type being "file" or "dir".
With recursive, each folder's children follow it. With pattern, the folder is
scanned recursively and only entries whose path relative to it matches the
doublestar glob (e.g. "**/*.csv") are returned.`),
		siteParam(),
		mcp.WithString("identifier",
			mcp.Description("Folder to list (default: '/')"),
			mcp.DefaultString("/"),
		),
		mcp.WithBoolean("recursive",
			mcp.Description("Descend into subfolders (default: false)"),
		),
		mcp.WithBoolean("files",
			mcp.Description("Include files (default: true)"),
		),
		mcp.WithBoolean("folders",
			mcp.Description("Include folders (default: true)"),
		),
		mcp.WithString("pattern",
			mcp.Description("Glob pattern relative to identifier"),
		),
	)
}

func sftpStatTool() mcp.Tool {
	return mcp.NewTool("sftp_stat",
		mcp.WithDescription("Report whether a path exists, its size, times, MIME type and the session user's read/write access"),
		siteParam(),
		mcp.WithString("identifier", mcp.Required(), mcp.Description(descIdentifier)),
	)
}

func sftpReadTool() mcp.Tool {
	return mcp.NewTool("sftp_read",
		mcp.WithDescription("Read a file (up to 1MB). Binary content is returned base64 encoded."),
		siteParam(),
		mcp.WithString("identifier", mcp.Required(), mcp.Description(descIdentifier)),
		mcp.WithString("encoding",
			mcp.Description("'text' (default) or 'base64'"),
			mcp.DefaultString(encodingText),
		),
	)
}

func sftpWriteTool() mcp.Tool {
	return mcp.NewTool("sftp_write",
		mcp.WithDescription("Create or replace a file with the given content"),
		siteParam(),
		mcp.WithString("identifier", mcp.Required(), mcp.Description(descIdentifier)),
		mcp.WithString("content", mcp.Required(), mcp.Description("File content")),
		mcp.WithString("encoding",
			mcp.Description("Encoding of content: 'text' (default) or 'base64'"),
			mcp.DefaultString(encodingText),
		),
	)
}

func sftpMkdirTool() mcp.Tool {
	return mcp.NewTool("sftp_mkdir",
		mcp.WithDescription("Create a folder"),
		siteParam(),
		mcp.WithString("identifier", mcp.Required(), mcp.Description(descIdentifier)),
		mcp.WithBoolean("recursive", mcp.Description("Create missing parents (default: false)")),
	)
}

func sftpDeleteTool() mcp.Tool {
	return mcp.NewTool("sftp_delete",
		mcp.WithDescription("Delete a file, or a folder and (with recursive) its contents"),
		siteParam(),
		mcp.WithString("identifier", mcp.Required(), mcp.Description(descIdentifier)),
		mcp.WithBoolean("recursive", mcp.Description("Delete folder contents first (default: false)")),
	)
}

func sftpRenameTool() mcp.Tool {
	return mcp.NewTool("sftp_rename",
		mcp.WithDescription(`Move a file or folder. An existing target is replaced.

How a failed replacement is recovered depends on the site's rename_fallback:
"keep" restores the old target, "delete_source" leaves neither side.`),
		siteParam(),
		mcp.WithString("from", mcp.Required(), mcp.Description("Current path")),
		mcp.WithString("to", mcp.Required(), mcp.Description("New path")),
	)
}

func sftpCopyTool() mcp.Tool {
	return mcp.NewTool("sftp_copy",
		mcp.WithDescription("Copy a file or a folder tree within the site"),
		siteParam(),
		mcp.WithString("source", mcp.Required(), mcp.Description("Path to copy")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Destination path")),
	)
}

func sftpHashTool() mcp.Tool {
	return mcp.NewTool("sftp_hash",
		mcp.WithDescription("Compute the hex digest of a file"),
		siteParam(),
		mcp.WithString("identifier", mcp.Required(), mcp.Description(descIdentifier)),
		mcp.WithString("algorithm",
			mcp.Description("sha1 (default), md5 or sha256"),
			mcp.DefaultString("sha1"),
		),
	)
}

func sftpFingerprintTool() mcp.Tool {
	return mcp.NewTool("sftp_fingerprint",
		mcp.WithDescription("Return the fingerprint of the host key the server presented"),
		siteParam(),
		mcp.WithString("method",
			mcp.Description("sha1 (default) or md5"),
			mcp.DefaultString("sha1"),
		),
	)
}

func sftpSitesTool() mcp.Tool {
	return mcp.NewTool("sftp_sites",
		mcp.WithDescription("List configured site names and which ones have an open session"),
	)
}

// Tool handlers

// withSession runs fn against the request's site with the server lock held.
func (s *Server) withSession(ctx context.Context, req mcp.CallToolRequest, fn func(*driver.Session) (*mcp.CallToolResult, error)) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.sessionLocked(ctx, mcp.ParseString(req, "site", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return fn(sess)
}

func (s *Server) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier := mcp.ParseString(req, "identifier", "/")
	pattern := mcp.ParseString(req, "pattern", "")
	opts := driver.ScanOptions{
		Files:     mcp.ParseBoolean(req, "files", true),
		Folders:   mcp.ParseBoolean(req, "folders", true),
		Recursive: mcp.ParseBoolean(req, "recursive", false),
	}

	return s.withSession(ctx, req, func(sess *driver.Session) (*mcp.CallToolResult, error) {
		var (
			listing *driver.Listing
			err     error
		)
		if pattern != "" {
			listing, err = sess.Glob(identifier, pattern)
		} else {
			listing, err = sess.ScanDirectory(identifier, opts)
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(listing)
	})
}

func (s *Server) handleStat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier := mcp.ParseString(req, "identifier", "")
	if identifier == "" {
		return mcp.NewToolResultError(errIdentifierRequired), nil
	}

	return s.withSession(ctx, req, func(sess *driver.Session) (*mcp.CallToolResult, error) {
		isFile, err := sess.Exists(identifier, driver.KindFile)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		isDir := false
		if !isFile {
			if isDir, err = sess.Exists(identifier, driver.KindFolder); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		if !isFile && !isDir {
			return jsonResult(map[string]any{"identifier": identifier, "exists": false})
		}

		details, err := sess.Details(identifier)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		perms, err := sess.Permissions(identifier)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		kind := driver.EntryFile
		if isDir {
			kind = driver.EntryDir
		}
		return jsonResult(map[string]any{
			"identifier":  identifier,
			"exists":      true,
			"type":        kind,
			"details":     details,
			"permissions": perms,
		})
	})
}

func (s *Server) handleRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier := mcp.ParseString(req, "identifier", "")
	if identifier == "" {
		return mcp.NewToolResultError(errIdentifierRequired), nil
	}
	encoding := mcp.ParseString(req, "encoding", encodingText)
	if encoding != encodingText && encoding != encodingBase64 {
		return mcp.NewToolResultError(fmt.Sprintf("unknown encoding %q", encoding)), nil
	}

	return s.withSession(ctx, req, func(sess *driver.Session) (*mcp.CallToolResult, error) {
		details, err := sess.Details(identifier)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if details.Size > maxContentSize {
			return mcp.NewToolResultError(fmt.Sprintf(
				"file is %d bytes, larger than the %d byte inline limit", details.Size, maxContentSize)), nil
		}

		data, err := sess.ReadFile(identifier)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		// Binary content cannot travel as JSON text.
		if encoding == encodingText && !utf8.Valid(data) {
			encoding = encodingBase64
		}
		content := string(data)
		if encoding == encodingBase64 {
			content = base64.StdEncoding.EncodeToString(data)
		}

		return jsonResult(map[string]any{
			"identifier": identifier,
			"size":       len(data),
			"mimetype":   details.MimeType,
			"encoding":   encoding,
			"content":    content,
		})
	})
}

func (s *Server) handleWrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier := mcp.ParseString(req, "identifier", "")
	if identifier == "" {
		return mcp.NewToolResultError(errIdentifierRequired), nil
	}
	content := mcp.ParseString(req, "content", "")

	var data []byte
	switch encoding := mcp.ParseString(req, "encoding", encodingText); encoding {
	case encodingText:
		data = []byte(content)
	case encodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("decode base64 content: %v", err)), nil
		}
		data = decoded
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown encoding %q", encoding)), nil
	}

	return s.withSession(ctx, req, func(sess *driver.Session) (*mcp.CallToolResult, error) {
		if err := sess.WriteFile(identifier, data); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{
			"status":     "written",
			"identifier": identifier,
			"size":       len(data),
		})
	})
}

func (s *Server) handleMkdir(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier := mcp.ParseString(req, "identifier", "")
	if identifier == "" {
		return mcp.NewToolResultError(errIdentifierRequired), nil
	}
	recursive := mcp.ParseBoolean(req, "recursive", false)

	return s.withSession(ctx, req, func(sess *driver.Session) (*mcp.CallToolResult, error) {
		created, err := sess.CreateFolder(identifier, recursive)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"status": "created", "identifier": created})
	})
}

func (s *Server) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier := mcp.ParseString(req, "identifier", "")
	if identifier == "" {
		return mcp.NewToolResultError(errIdentifierRequired), nil
	}
	recursive := mcp.ParseBoolean(req, "recursive", false)

	return s.withSession(ctx, req, func(sess *driver.Session) (*mcp.CallToolResult, error) {
		deleted, err := sess.Delete(identifier, recursive)
		if err != nil && !errors.Is(err, driver.ErrNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"identifier": identifier, "deleted": deleted})
	})
}

func (s *Server) handleRename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := mcp.ParseString(req, "from", "")
	to := mcp.ParseString(req, "to", "")
	if from == "" || to == "" {
		return mcp.NewToolResultError("from and to are required"), nil
	}

	return s.withSession(ctx, req, func(sess *driver.Session) (*mcp.CallToolResult, error) {
		if err := sess.Rename(from, to); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"status": "renamed", "from": from, "to": to})
	})
}

func (s *Server) handleCopy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := mcp.ParseString(req, "source", "")
	target := mcp.ParseString(req, "target", "")
	if source == "" || target == "" {
		return mcp.NewToolResultError("source and target are required"), nil
	}

	return s.withSession(ctx, req, func(sess *driver.Session) (*mcp.CallToolResult, error) {
		if err := sess.Copy(source, target); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"status": "copied", "source": source, "target": target})
	})
}

func (s *Server) handleHash(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identifier := mcp.ParseString(req, "identifier", "")
	if identifier == "" {
		return mcp.NewToolResultError(errIdentifierRequired), nil
	}
	algorithm := mcp.ParseString(req, "algorithm", "sha1")

	return s.withSession(ctx, req, func(sess *driver.Session) (*mcp.CallToolResult, error) {
		sum, err := sess.Hash(identifier, algorithm)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"identifier": identifier, "algorithm": algorithm, "hash": sum})
	})
}

func (s *Server) handleFingerprint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	method := mcp.ParseString(req, "method", "sha1")

	return s.withSession(ctx, req, func(sess *driver.Session) (*mcp.CallToolResult, error) {
		fp, err := sess.ForeignKeyFingerprint(method)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		cfg := sess.Config()
		return jsonResult(map[string]any{
			"host":        cfg.Host,
			"port":        cfg.Port,
			"method":      method,
			"fingerprint": fp,
		})
	})
}

func (s *Server) handleSites(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type siteInfo struct {
		Name      string `json:"name"`
		Host      string `json:"host"`
		User      string `json:"user"`
		Connected bool   `json:"connected"`
	}
	sites := make([]siteInfo, 0, len(s.config.Sites))
	for _, site := range s.config.Sites {
		_, open := s.sessions[site.Name]
		sites = append(sites, siteInfo{Name: site.Name, Host: site.Host, User: site.User, Connected: open})
	}
	return jsonResult(sites)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
