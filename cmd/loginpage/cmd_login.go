package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/otpless/loginpage/pkg/logger"
	"github.com/otpless/loginpage/pkg/types"
	"github.com/otpless/loginpage/sdk"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var (
	flagPhone       string
	flagCountryCode string
	flagEmail       string
	flagBaseURL     string
	flagTimeout     time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Run one login flow and print the result",
	Long: `Initialize the SDK, present the login page as a URL and QR code and
wait for the result. Paste the otpless callback link to finish by deep link.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&flagPhone, "phone", "", "Prefill phone number")
	loginCmd.Flags().StringVar(&flagCountryCode, "country-code", "", "Country code for --phone")
	loginCmd.Flags().StringVar(&flagEmail, "email", "", "Prefill email")
	loginCmd.Flags().StringVar(&flagBaseURL, "base-url", "", "Custom login page URL")
	loginCmd.Flags().DurationVar(&flagTimeout, "room-timeout", 0, "Wait for a room id (default from config)")
}

// terminalPresenter prints the login page instead of opening a browser.
type terminalPresenter struct{}

func (terminalPresenter) Present(loginURL string) error {
	fmt.Println()
	fmt.Println("Open the login page:")
	fmt.Println(loginURL)
	printQRCode(loginURL)
	fmt.Println("Paste the otpless callback link here, or wait for the result.")
	return nil
}

func (terminalPresenter) Dismiss() {
	logger.Debugf("login page dismissed")
}

func printQRCode(data string) {
	qr, err := qrcode.New(data, qrcode.Low)
	if err != nil {
		logger.Warnf("Failed to generate QR code: %v", err)
		return
	}
	fmt.Println(qr.ToSmallString(false))
}

func runLogin(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	results := make(chan types.AuthResult, 1)
	client.SetListener(sdk.ListenerFunc(func(res types.AuthResult) {
		select {
		case results <- res:
		default:
		}
	}))

	extras := map[string]string{}
	if flagPhone != "" {
		extras[sdk.ExtraPhone] = flagPhone
		extras[sdk.ExtraCountryCode] = flagCountryCode
	}
	if flagEmail != "" {
		extras[sdk.ExtraEmail] = flagEmail
	}
	opts := sdk.StartOptions{
		Presenter: terminalPresenter{},
		Extras:    extras,
		Timeout:   flagTimeout,
	}
	if flagBaseURL != "" {
		client.StartWithBaseURL(flagBaseURL, opts)
	} else {
		client.Start(opts)
	}

	go readDeeplinks(client)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case res := <-results:
		printResult(res)
		if !res.IsSuccess() {
			return fmt.Errorf("login failed: %s", res.ErrorMessage)
		}
		state := client.GetActiveSession(context.Background())
		logger.Debugf("session active: %v", state.Active)
		return nil
	case <-sig:
		client.OnUserDismissed()
		select {
		case res := <-results:
			printResult(res)
		case <-time.After(time.Second):
		}
		return fmt.Errorf("login cancelled")
	}
}

// readDeeplinks forwards callback links typed on stdin.
func readDeeplinks(client *sdk.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !client.IsOtplessDeeplink(line) {
			fmt.Println("Not an otpless callback link.")
			continue
		}
		client.ProcessDeeplink(line)
	}
}

func printResult(res types.AuthResult) {
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		fmt.Println(res.JSON())
		return
	}
	fmt.Println(string(out))
}
