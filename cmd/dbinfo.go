// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"net/url"
	"os"
	"strings"

	"qlnotebook/cli/internal/config"
	"qlnotebook/cli/internal/dsn"
	"qlnotebook/cli/internal/keychain"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// dbinfoCmd shows which engine and database qlnb will use.
var dbinfoCmd = &cobra.Command{
	Use:   "dbinfo",
	Short: "Show the configured engine and connection",
	Long: `The dbinfo command displays the engine run and repl will use and its connection
target. Passwords in DSNs are replaced with *** so the output is safe to share.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var target, source string
		switch cfg.Engine {
		case config.EngineSQLite:
			target, source = cfg.SQLite.Path, "config"
		case config.EngineRemote:
			target, source = cfg.Remote.Addr, "config"
			if cfg.Remote.Insecure {
				target += " (insecure)"
			}
			if hasRemoteToken() {
				target += "\ntoken: stored"
			}
		default:
			var secrets dsn.SecretStore
			if km, err := keychain.GetManager(); err == nil {
				secrets = km
			}
			conn, src, err := dsn.Resolve(secrets)
			if errors.Is(err, dsn.ErrNoDSN) {
				pterm.Println("⚠️  No database connection configured")
				pterm.Println("   Please run: qlnb connect")
				return nil
			}
			if err != nil {
				return err
			}
			target, source = maskPassword(conn), string(src)
		}

		pterm.DefaultBox.
			WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprintf("Engine: %s", cfg.Engine)).
			WithTopPadding(1).WithBottomPadding(1).WithLeftPadding(1).WithRightPadding(1).
			Println(target)
		pterm.Println(pterm.Gray("source: " + source))
		pterm.Println()
		pterm.Println("To update this connection, run: qlnb connect")
		return nil
	},
}

func hasRemoteToken() bool {
	if os.Getenv("QLNB_REMOTE_TOKEN") != "" {
		return true
	}
	km, err := keychain.GetManager()
	if err != nil {
		return false
	}
	_, err = km.LoadRemoteToken()
	return err == nil
}

// maskPassword replaces the password in a PostgreSQL DSN with asterisks.
func maskPassword(conn string) string {
	u, err := url.Parse(conn)
	if err != nil {
		return maskPasswordSimple(conn)
	}
	if u.User == nil {
		return conn
	}
	if _, ok := u.User.Password(); !ok {
		return conn
	}
	u.User = url.UserPassword(u.User.Username(), "***")
	// url escapes the asterisks; keep them readable.
	return strings.Replace(u.String(), "%2A%2A%2A", "***", 1)
}

// maskPasswordSimple masks DSNs that do not parse as URLs.
func maskPasswordSimple(conn string) string {
	at := strings.LastIndex(conn, "@")
	if at == -1 {
		return conn
	}
	colon := strings.LastIndex(conn[:at], ":")
	if colon == -1 {
		return conn
	}
	if p := strings.Index(conn, "://"); p != -1 && colon < p+3 {
		return conn
	}
	return conn[:colon+1] + "***" + conn[at:]
}

func init() {
	rootCmd.AddCommand(dbinfoCmd)
}
