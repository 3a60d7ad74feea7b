package main

import (
	"fmt"
	"os"

	"github.com/otpless/loginpage/internal/config"
	"github.com/otpless/loginpage/pkg/logger"
	"github.com/otpless/loginpage/sdk"
	"github.com/spf13/cobra"
)

var (
	flagAppID    string
	flagSecret   string
	flagLoginURI string
	flagDebug    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loginpage",
	Short: "Drive an OTPless hosted login page from the terminal",
	Long: `loginpage runs the OTPless login page flow outside a mobile app.

The login page URL is printed together with a QR code so it can be opened
on a phone. The result arrives over the realtime channel, or by pasting
the otpless callback link back into the terminal.

Examples:
  loginpage login --app-id APP123
  loginpage deeplink 'otpless.app123://otpless/close?token=abc'
  loginpage session status --app-id APP123
  loginpage session logout --app-id APP123`,
	Version:       sdk.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(deeplinkCmd)
	rootCmd.AddCommand(sessionCmd)

	rootCmd.PersistentFlags().StringVar(&flagAppID, "app-id", os.Getenv("OTPLESS_APP_ID"), "OTPless app id")
	rootCmd.PersistentFlags().StringVar(&flagSecret, "secret", os.Getenv("OTPLESS_APP_SECRET"), "App secret for the room token flow")
	rootCmd.PersistentFlags().StringVar(&flagLoginURI, "login-uri", "", "Callback URI (default otpless.{appid}://otpless)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
}

// newClient loads the environment configuration and builds an initialized
// SDK client.
func newClient() (*sdk.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if flagDebug || cfg.Debug {
		level = logger.LevelDebug
	}
	logger.SetLevel(level)

	if flagAppID == "" {
		return nil, fmt.Errorf("--app-id is required")
	}

	client, err := sdk.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.SetLogDirectory(cfg.LogDir()); err != nil {
		logger.Warnf("log directory unavailable: %v", err)
	}
	traceID, err := client.InitializeWithSecret(flagAppID, flagSecret, flagLoginURI)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Debugf("trace id: %s", traceID)
	return client, nil
}
