package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var stdin = bufio.NewReader(os.Stdin)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readLine prompts for a visible value
func readLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	input, err := stdin.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// readSecret prompts for a value without echoing it when stdin is a terminal
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if stdinIsTerminal() {
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err == nil {
			return strings.TrimSpace(string(secret)), nil
		}
	}

	input, err := stdin.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// pinPrompt is a CodeProvider asking for the emailed PIN. The read is not
// interruptible, so a cancelled ctx is reported once the prompt returns.
func pinPrompt(ctx context.Context) (string, error) {
	pin, err := readSecret("Verification PIN from the email: ")
	if err != nil {
		return "", fmt.Errorf("read PIN: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if pin == "" {
		return "", errors.New("empty PIN")
	}
	return pin, nil
}
