package forge

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/joho/godotenv"
)

// Credentials is the token/username pair the Forge Client authenticates
// with, or ReadOnlyLocal if none could be sourced.
type Credentials struct {
	Token         string
	Username      string
	ReadOnlyLocal bool
}

// LoadCredentials sources a token from the environment (loading a local
// .env file first, best-effort), falling back to a non-interactive
// credential-helper probe, and finally degrading to read-only-local mode
// when nothing yields a token.
func LoadCredentials(ctx context.Context) Credentials {
	_ = godotenv.Load()

	if tok := firstNonEmpty(os.Getenv("GH_TOKEN"), os.Getenv("GITHUB_TOKEN")); tok != "" {
		return Credentials{Token: tok, Username: os.Getenv("GH_USER")}
	}
	if tok, user, ok := credentialHelperLookup(ctx); ok {
		return Credentials{Token: tok, Username: user}
	}
	return Credentials{ReadOnlyLocal: true}
}

func credentialHelperLookup(ctx context.Context) (token, username string, ok bool) {
	cmd := exec.CommandContext(ctx, "git", "credential", "fill")
	cmd.Stdin = strings.NewReader("protocol=https\nhost=github.com\n\n")
	out, err := cmd.Output()
	if err != nil {
		return "", "", false
	}
	fields := parseCredentialOutput(out)
	return fields["password"], fields["username"], fields["password"] != ""
}

// parseCredentialOutput parses `git credential fill`'s key=value lines,
// normalizing CRLF line endings first — required for host systems whose
// credential helper emits CRLF.
func parseCredentialOutput(out []byte) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		fields[key] = value
	}
	return fields
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
