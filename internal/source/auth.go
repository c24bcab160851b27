package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	apperrors "github.com/edgard/channelrelay/internal/errors"
)

// Authenticator supplies the answers of the user login flow. It is only
// consulted when no valid session token is available.
type Authenticator interface {
	Phone(ctx context.Context) (string, error)
	Code(ctx context.Context) (string, error)
	Password(ctx context.Context) (string, error)
}

// PromptAuthenticator asks for login details on a terminal.
type PromptAuthenticator struct {
	phone string
	in    *bufio.Reader
	out   io.Writer
	// readSecret reads a line without echo. Nil when in is not a terminal.
	readSecret func() ([]byte, error)
}

// NewPromptAuthenticator reads answers from in and writes prompts to out.
// A non-empty phone is used without prompting. When in is a terminal the
// two-factor password is read with echo disabled.
func NewPromptAuthenticator(phone string, in io.Reader, out io.Writer) *PromptAuthenticator {
	return &PromptAuthenticator{
		phone:      phone,
		in:         bufio.NewReader(in),
		out:        out,
		readSecret: secretReader(in),
	}
}

func secretReader(in io.Reader) func() ([]byte, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	fd := int(f.Fd())
	return func() ([]byte, error) { return term.ReadPassword(fd) }
}

func (a *PromptAuthenticator) Phone(ctx context.Context) (string, error) {
	if a.phone != "" {
		return a.phone, nil
	}
	return a.prompt(ctx, "Phone number (international format): ")
}

func (a *PromptAuthenticator) Code(ctx context.Context) (string, error) {
	return a.prompt(ctx, "Login code: ")
}

func (a *PromptAuthenticator) Password(ctx context.Context) (string, error) {
	const label = "Two-factor password: "
	if a.readSecret == nil {
		return a.prompt(ctx, label)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := fmt.Fprint(a.out, label); err != nil {
		return "", err
	}
	secret, err := a.readSecret()
	fmt.Fprintln(a.out)
	if err != nil {
		return "", fmt.Errorf("failed to read two-factor password: %w", err)
	}
	if len(secret) == 0 {
		return "", errors.New("empty two-factor password")
	}
	return string(secret), nil
}

func (a *PromptAuthenticator) prompt(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := fmt.Fprint(a.out, label); err != nil {
		return "", err
	}
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read %q: %w", strings.TrimSpace(label), err)
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return "", fmt.Errorf("empty answer for %q", strings.TrimSpace(label))
	}
	return answer, nil
}

// StaticAuthenticator serves unattended deployments: it knows the phone
// number but cannot answer a login code, so a missing or revoked session
// becomes a configuration error instead of a blocked prompt.
type StaticAuthenticator struct {
	PhoneNumber string
}

func (a StaticAuthenticator) Phone(context.Context) (string, error) {
	if a.PhoneNumber == "" {
		return "", errInteractiveLogin
	}
	return a.PhoneNumber, nil
}

func (a StaticAuthenticator) Code(context.Context) (string, error) {
	return "", errInteractiveLogin
}

func (a StaticAuthenticator) Password(context.Context) (string, error) {
	return "", errInteractiveLogin
}

var errInteractiveLogin = apperrors.NewConfigurationError(
	"interactive login required: provide source.session or run with -interactive", nil)
