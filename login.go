package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HenningUe/icloud-sync-go/internal/icloud"
)

// newLoginCmd builds the `login` command: an interactive, terminal-driven
// authentication flow that establishes and persists a trusted CloudSession,
// so that `sync` (attended or unattended) can skip the 2FA dance
// afterward, per spec.md §4.E.
//
// This bypasses Component D's web-based AuthCoordinator entirely — the
// operator is already present at a terminal, so the code is requested and
// entered right here instead of via the loopback HTTP form.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with iCloud and persist a trusted session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if cc.AppleID == "" || cc.AppPasswd == "" {
				return &exitCodeError{code: exitConfigError, err: fmt.Errorf(
					"login: set %s and %s in the environment", envAppleID, envAppPassword)}
			}

			cloud := newCloudSession(cc)

			if err := cloud.LoadPersistedSession(); err != nil {
				cc.Logger.Warn("login: loading prior session failed, starting fresh")
			}

			return runLogin(cmd.Context(), cc, cloud)
		},
	}
}

func runLogin(ctx context.Context, cc *CLIContext, cloud *icloud.Session) error {
	result, err := cloud.Authenticate(ctx)
	if err != nil {
		return &exitCodeError{code: exitAuthFailure, err: err}
	}

	switch result {
	case icloud.AuthOK:
		statusf("Already authenticated; trusted session is valid.\n")
		return nil

	case icloud.AuthTwoFactorRequired:
		return completeLoginTwoFactor(ctx, cc, cloud)

	case icloud.AuthInvalidCredentials:
		return &exitCodeError{code: exitAuthFailure, err: fmt.Errorf("login: invalid Apple ID or app password")}

	default:
		return &exitCodeError{code: exitAuthFailure, err: fmt.Errorf("login: iCloud service unavailable")}
	}
}

// completeLoginTwoFactor drives the terminal-based 2FA exchange: request a
// code, read it from stdin, verify it, then trust the resulting session so
// future `sync` runs skip this dance entirely.
func completeLoginTwoFactor(ctx context.Context, cc *CLIContext, cloud *icloud.Session) error {
	if err := cloud.Request2FA(ctx); err != nil {
		return &exitCodeError{code: exitAuthFailure, err: fmt.Errorf("login: requesting 2FA code: %w", err)}
	}

	code, err := readCodeFromStdin()
	if err != nil {
		return &exitCodeError{code: exitAuthFailure, err: err}
	}

	if err := cloud.Verify2FA(ctx, code); err != nil {
		return &exitCodeError{code: exitAuthFailure, err: fmt.Errorf("login: verifying code: %w", err)}
	}

	if err := cloud.TrustSession(ctx); err != nil {
		return &exitCodeError{code: exitAuthFailure, err: fmt.Errorf("login: trusting session: %w", err)}
	}

	statusf("Authenticated and trusted session saved for %s.\n", cc.AppleID)

	return nil
}

func readCodeFromStdin() (string, error) {
	fmt.Fprint(os.Stderr, "Enter the verification code sent to your trusted device: ")

	reader := bufio.NewReader(os.Stdin)

	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("login: reading code: %w", err)
	}

	return strings.TrimSpace(line), nil
}
