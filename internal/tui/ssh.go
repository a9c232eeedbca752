package tui

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	bm "github.com/charmbracelet/wish/bubbletea"
	gossh "golang.org/x/crypto/ssh"
)

// SSHConfig configures the dashboard's SSH listener.
type SSHConfig struct {
	Addr        string
	HostKeyPath string
	IdleTimeout time.Duration
}

var ErrNoAuthorizedKeys = errors.New("no authorized ssh keys")

// LoadAuthorizedKeys reads an OpenSSH authorized_keys file.
func LoadAuthorizedKeys(path string) ([]gossh.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}
	return ParseAuthorizedKeys(data)
}

// ParseAuthorizedKeys parses authorized_keys content. Blank lines and
// comments are skipped; any other unparseable line is an error.
func ParseAuthorizedKeys(data []byte) ([]gossh.PublicKey, error) {
	var keys []gossh.PublicKey
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, _, _, _, err := gossh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("authorized keys line %d: %w", n, err)
		}
		keys = append(keys, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan authorized keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, ErrNoAuthorizedKeys
	}
	return keys, nil
}

// NewSSHServer serves one AppModel per session. Only the given keys may log
// in; services builds the per-user dependencies.
func NewSSHServer(cfg SSHConfig, allowed []gossh.PublicKey, services func(user string) Services) (*ssh.Server, error) {
	if len(allowed) == 0 {
		return nil, ErrNoAuthorizedKeys
	}
	opts := []ssh.Option{
		wish.WithAddress(cfg.Addr),
		wish.WithHostKeyPath(cfg.HostKeyPath),
		wish.WithPublicKeyAuth(keyAuthorizer(allowed)),
		wish.WithMiddleware(
			bm.Middleware(sessionHandler(services)),
			activeterm.Middleware(),
			sessionLogger(),
		),
	}
	if cfg.IdleTimeout > 0 {
		opts = append(opts, wish.WithIdleTimeout(cfg.IdleTimeout))
	}
	srv, err := wish.NewServer(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ssh server: %w", err)
	}
	return srv, nil
}

func keyAuthorizer(allowed []gossh.PublicKey) ssh.PublicKeyHandler {
	return func(_ ssh.Context, key ssh.PublicKey) bool {
		for _, k := range allowed {
			if ssh.KeysEqual(k, key) {
				return true
			}
		}
		log.Printf("ssh: rejected key %s", gossh.FingerprintSHA256(key))
		return false
	}
}

func sessionHandler(services func(user string) Services) bm.Handler {
	return func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
		m := NewAppModel(services(s.User()))
		if pty, _, ok := s.Pty(); ok {
			m.SetSize(pty.Window.Width, pty.Window.Height)
		}
		return m, []tea.ProgramOption{tea.WithAltScreen()}
	}
}

func sessionLogger() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(s ssh.Session) {
			start := time.Now()
			fingerprint := "-"
			if key := s.PublicKey(); key != nil {
				fingerprint = gossh.FingerprintSHA256(key)
			}
			log.Printf("ssh session opened user=%s key=%s remote=%s", s.User(), fingerprint, s.RemoteAddr())
			next(s)
			log.Printf("ssh session closed user=%s after %s", s.User(), time.Since(start).Round(time.Second))
		}
	}
}
