package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iyunix/go-chatwidget/internal/client"
	"github.com/iyunix/go-chatwidget/internal/services"
)

// --- Global Command Variables ---
var (
	serverURL    string
	companyID    string
	userID       string
	timezone     string
	sessionPath  string
	forceSSE     bool
	emailCapture bool
	verbose      bool

	rootCmd = &cobra.Command{
		Use:          "widgetcli",
		Short:        "Chat with a widget backend from the terminal",
		SilenceUsage: true,
	}

	newCmd = &cobra.Command{
		Use:   "new",
		Short: "Open a new chat and print the welcome message",
		RunE:  runNewCommand,
	}
	sendCmd = &cobra.Command{
		Use:   "send [message]",
		Short: "Send one message and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSendCommand, // Defined in cmd_chat.go
	}
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat; Ctrl-C cancels the reply in progress",
		RunE:  runChatCommand, // Defined in cmd_chat.go
	}
	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Forget the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.NewFileCredentialStore(sessionPath).Clear()
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&serverURL, "server", envOr("CHATWIDGET_URL", "http://localhost:8080"), "backend base URL")
	flags.StringVar(&companyID, "company", os.Getenv("CHATWIDGET_COMPANY"), "company id the chat belongs to")
	flags.StringVar(&userID, "user", "", "visitor id; empty lets the server assign one")
	flags.StringVar(&timezone, "timezone", "", "IANA time zone sent with each message")
	flags.StringVar(&sessionPath, "session", defaultSessionPath(), "file holding the saved session")
	flags.BoolVar(&forceSSE, "sse", false, "use server-sent events instead of NDJSON")
	flags.BoolVar(&emailCapture, "email-capture", true, "accept request_email events")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log transport details")

	rootCmd.AddCommand(newCmd, sendCmd, chatCmd, resetCmd)
}

func newClient() (*client.Client, error) {
	opts := client.DefaultOptions()
	opts.BaseURL = serverURL
	opts.CompanyID = companyID
	opts.UserID = userID
	opts.Timezone = timezone
	opts.EmailCapture = emailCapture
	opts.StreamingBodies = !forceSSE
	if verbose {
		opts.Logger = services.NewProductionLogger("widgetcli", os.Stderr, services.LogLevelDebug, false)
	}
	return client.New(opts, client.NewFileCredentialStore(sessionPath))
}

func runNewCommand(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	creds, messages, err := c.CreateChat(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "chat %s\n", creds.ChatID)
	for _, m := range messages {
		fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".chatwidget-session.json"
	}
	return filepath.Join(dir, "chatwidget", "session.json")
}
