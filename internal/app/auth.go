package app

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/datapkg/internal/apperr"
	"github.com/blackwell-systems/datapkg/internal/store"
)

// LoginCommand exchanges a one-time code from the registry's login page
// for credentials. With an empty Code the page is opened and the code is
// read from input.
type LoginCommand struct {
	Code string
}

// LogoutCommand deletes stored credentials.
type LogoutCommand struct{}

// StatusCommand reports login state and local store details.
type StatusCommand struct{}

func (*LoginCommand) command()  {}
func (*LogoutCommand) command() {}
func (*StatusCommand) command() {}

var loginCode string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the package registry",
	Long: `Log in to the package registry.

Opens the registry's login page in a browser. After signing in, paste the
code shown on the page. Credentials are stored in auth.json in the data
directory, readable only by you, and refreshed automatically.`,
	Example: `  # Interactive login
  datapkg login

  # Non-interactive login with a code obtained elsewhere
  datapkg login --code 3f9a...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(cmd, &LoginCommand{Code: loginCode})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(cmd, &LogoutCommand{})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show login state and store location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatch(cmd, &StatusCommand{})
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginCode, "code", "", "one-time code from the login page")

	RootCmd.AddCommand(loginCmd)
	RootCmd.AddCommand(logoutCmd)
	RootCmd.AddCommand(statusCmd)
}

func (d *Dispatcher) login(ctx context.Context, c *LoginCommand) error {
	code := c.Code
	if code == "" {
		loginURL := d.cfg.RegistryURL + "/login"
		fmt.Fprintln(d.out, "Launching a web browser...")
		fmt.Fprintf(d.out, "If that didn't work, please visit the following URL: %s\n", loginURL)
		if err := d.openBrowser(loginURL); err != nil {
			d.logger.Debug("could not open browser", "error", err)
		}

		fmt.Fprint(d.out, "\nEnter the code from the webpage: ")
		line, err := d.readLine()
		if err != nil {
			return err
		}
		code = line
	}

	rec, err := d.creds.Login(ctx, code)
	if err != nil {
		return err
	}

	if sub, err := rec.Subject(); err == nil && sub != "" {
		fmt.Fprintf(d.out, "Logged in as %s.\n", sub)
	} else {
		fmt.Fprintln(d.out, "Logged in.")
	}
	return nil
}

func (d *Dispatcher) logout(*LogoutCommand) error {
	removed, err := d.creds.Logout()
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintln(d.out, "Logged out.")
	} else {
		fmt.Fprintln(d.out, "Already logged out.")
	}
	return nil
}

func (d *Dispatcher) status(*StatusCommand) error {
	fmt.Fprintf(d.out, "Registry:  %s\n", d.cfg.RegistryURL)

	rec, err := d.creds.Load()
	switch {
	case err != nil:
		fmt.Fprintf(d.out, "Account:   unreadable credentials (%v)\n", err)
	case rec == nil:
		fmt.Fprintln(d.out, "Account:   not logged in")
	default:
		who := "logged in"
		if sub, err := rec.Subject(); err == nil && sub != "" {
			who = "logged in as " + sub
		}
		fmt.Fprintf(d.out, "Account:   %s\n", who)

		if remaining := time.Until(rec.Expiry()); remaining > 0 {
			fmt.Fprintf(d.out, "Token:     valid for %s\n", remaining.Round(time.Second))
		} else {
			fmt.Fprintln(d.out, "Token:     expired, will refresh on next use")
		}
	}

	entries, err := d.packages.Packages()
	if err != nil {
		return apperr.WrapStore("failed to list packages", err)
	}
	fmt.Fprintf(d.out, "Store:     %s\n", d.packages.Root())
	for _, root := range d.packages.Roots()[1:] {
		fmt.Fprintf(d.out, "           %s (read-only)\n", root)
	}
	fmt.Fprintf(d.out, "Packages:  %s\n", plural(len(entries), "package"))

	idx, err := d.openIndex(false)
	if err != nil {
		d.logger.Warn("history index unavailable", "error", err)
		return nil
	}
	if idx != nil {
		defer idx.Close()
		if n, err := idx.EventCount(); err == nil {
			fmt.Fprintf(d.out, "History:   %s\n", plural(n, "event"))
		}
		if missing := d.missingIndexed(idx); missing > 0 {
			fmt.Fprintf(d.out, "Missing:   %s no longer in the store\n", plural(missing, "indexed package"))
		}
	}
	return nil
}

// missingIndexed counts packages the index last saw installed whose
// artifact has since disappeared, for example by hand deletion.
func (d *Dispatcher) missingIndexed(idx *store.Index) int {
	records, err := idx.ListPackageRecords()
	if err != nil {
		d.logger.Warn("failed to read indexed packages", "error", err)
		return 0
	}
	missing := 0
	for _, rec := range records {
		entry, err := d.packages.EntryAt(rec.Root, rec.ID)
		if err != nil || !entry.Exists() {
			d.logger.Debug("indexed package missing", "package", rec.ID.String(), "root", rec.Root)
			missing++
		}
	}
	return missing
}

// openBrowser asks the desktop to open url.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
