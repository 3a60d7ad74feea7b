package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/otpless/loginpage/pkg/types"
	"github.com/otpless/loginpage/sdk"
	"github.com/spf13/cobra"
)

var deeplinkCmd = &cobra.Command{
	Use:   "deeplink <url>",
	Short: "Decode an otpless callback link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		link := strings.TrimSpace(args[0])
		if !sdk.IsOtplessDeeplink(link) {
			return fmt.Errorf("not an otpless callback link")
		}
		res, ok := sdk.ParseDeeplink(link)
		if !ok {
			return fmt.Errorf("link does not complete a login")
		}
		printResult(res)
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or end the stored session",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a live session exists, refreshing it if needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		state := client.GetActiveSession(context.Background())
		if !state.Active {
			fmt.Println("No active session.")
			return nil
		}
		fmt.Println("Active session.")
		printResult(types.AuthResult{Status: types.StatusSuccess, SessionTokenJWT: state.JWT, TraceID: client.TraceID()})
		return nil
	},
}

var sessionLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the local session and revoke it on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		client.Logout(context.Background())
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionLogoutCmd)
}
