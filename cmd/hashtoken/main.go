package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

const (
	defaultCost    = 12
	minTokenLength = 16
)

var (
	errMismatch = errors.New("tokens do not match")
	errTooShort = fmt.Errorf("token must be at least %d characters", minTokenLength)
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "hash":
		err = runHash(os.Stdout, costFromEnv())
	case "verify":
		err = runVerify(os.Stdout, os.Getenv("AUTH_TOKEN_HASH"))
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %q\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Preview Watcher token hashing")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: hashtoken <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  hash    - Print a bcrypt hash for AUTH_TOKEN_HASH")
	fmt.Fprintln(w, "  verify  - Check a token against AUTH_TOKEN_HASH")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  BCRYPT_COST - cost for new hashes (default: %d)\n", defaultCost)
}

func costFromEnv() int {
	cost, err := strconv.Atoi(os.Getenv("BCRYPT_COST"))
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return defaultCost
	}
	return cost
}

func prompt(label string) ([]byte, error) {
	fmt.Fprint(os.Stderr, label)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	return secret, nil
}

func runHash(out io.Writer, cost int) error {
	token, err := prompt("Token: ")
	if err != nil {
		return err
	}
	confirm, err := prompt("Confirm token: ")
	if err != nil {
		return err
	}

	hash, err := hashToken(token, confirm, cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}

func runVerify(out io.Writer, hash string) error {
	if hash == "" {
		return errors.New("AUTH_TOKEN_HASH is not set")
	}
	token, err := prompt("Token: ")
	if err != nil {
		return err
	}
	if !verifyToken(hash, token) {
		return errMismatch
	}
	fmt.Fprintln(out, "Token matches AUTH_TOKEN_HASH.")
	return nil
}

// hashToken checks the confirmation and returns the bcrypt hash of token.
func hashToken(token, confirm []byte, cost int) (string, error) {
	token = bytes.TrimSpace(token)
	if !bytes.Equal(token, bytes.TrimSpace(confirm)) {
		return "", errMismatch
	}
	if len(token) < minTokenLength {
		return "", errTooShort
	}
	hash, err := bcrypt.GenerateFromPassword(token, cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(hash), nil
}

func verifyToken(hash string, token []byte) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), bytes.TrimSpace(token)) == nil
}
