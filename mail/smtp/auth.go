package smtp

import (
	"net/smtp"
	"strings"

	"github.com/pkg/errors"
)

// chooseAuth picks PLAIN unless the server only offers LOGIN.
func chooseAuth(mechanisms, username, password, host string) smtp.Auth {
	offered := strings.Fields(strings.ToUpper(mechanisms))
	hasPlain, hasLogin := false, false
	for _, m := range offered {
		switch m {
		case "PLAIN":
			hasPlain = true
		case "LOGIN":
			hasLogin = true
		}
	}

	if hasLogin && !hasPlain {
		return &loginAuth{username: username, password: password, host: host}
	}
	return smtp.PlainAuth("", username, password, host)
}

// loginAuth implements the AUTH LOGIN mechanism, which net/smtp lacks.
type loginAuth struct {
	username string
	password string
	host     string
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS && !isLocalhost(server.Name) {
		return "", nil, errors.New("unencrypted connection")
	}
	if server.Name != a.host {
		return "", nil, errors.New("wrong host name")
	}
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}

	prompt := strings.ToLower(strings.TrimSpace(string(fromServer)))
	switch {
	case strings.HasPrefix(prompt, "username"):
		return []byte(a.username), nil
	case strings.HasPrefix(prompt, "password"):
		return []byte(a.password), nil
	default:
		return nil, errors.Errorf("unexpected server challenge %q", fromServer)
	}
}

func isLocalhost(name string) bool {
	return name == "localhost" || name == "127.0.0.1" || name == "::1"
}
