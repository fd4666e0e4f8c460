package smtp

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// generateTestCert generates a self-signed certificate for testing
func generateTestCert(t *testing.T) tls.Certificate {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Test SMTP"},
			CommonName:   "localhost",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})

	privBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	return cert
}

// testServerOptions scripts the behaviour of testServer.
type testServerOptions struct {
	implicitTLS bool   // wrap the listener in TLS
	startTLS    bool   // advertise and accept STARTTLS
	authMechs   string // advertised AUTH mechanisms, none when empty
	// mailFromReply replaces "250 OK" for MAIL FROM, e.g. "550 5.7.1 rate limited"
	mailFromReply string
	// dropAtMailFrom closes the connection when MAIL FROM arrives,
	// for the first dropCount connections (all when zero)
	dropAtMailFrom bool
	dropCount      int
}

// testServer is a minimal SMTP server for testing
type testServer struct {
	listener net.Listener
	cert     tls.Certificate
	opts     testServerOptions

	mx       sync.Mutex
	conns    int
	authed   []string
	messages []string
	quits    int
}

func startTestServer(t *testing.T, opts testServerOptions) *testServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to listen")

	s := &testServer{opts: opts}
	if opts.implicitTLS || opts.startTLS {
		s.cert = generateTestCert(t)
	}
	if opts.implicitTLS {
		listener = tls.NewListener(listener, &tls.Config{
			Certificates: []tls.Certificate{s.cert},
			MinVersion:   tls.VersionTLS12,
		})
	}
	s.listener = listener

	go s.run()
	t.Cleanup(func() { _ = s.listener.Close() })

	return s
}

func (s *testServer) port() int {
	_, p, _ := net.SplitHostPort(s.listener.Addr().String())
	port, _ := strconv.Atoi(p)
	return port
}

func (s *testServer) config(mode Mode) Config {
	return Config{
		Host:     "127.0.0.1",
		Port:     s.port(),
		Mode:     mode,
		Insecure: true,
	}
}

func (s *testServer) run() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mx.Lock()
		s.conns++
		n := s.conns
		s.mx.Unlock()

		go s.handle(conn, n)
	}
}

func (s *testServer) handle(conn net.Conn, n int) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	reply := func(lines ...string) {
		for _, l := range lines {
			writer.WriteString(l + "\r\n")
		}
		writer.Flush()
	}

	reply("220 localhost ESMTP Test Server")

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			lines := []string{"250-localhost"}
			if s.opts.startTLS {
				if _, isTLS := conn.(*tls.Conn); !isTLS {
					lines = append(lines, "250-STARTTLS")
				}
			}
			if s.opts.authMechs != "" {
				lines = append(lines, "250-AUTH "+s.opts.authMechs)
			}
			lines = append(lines, "250 HELP")
			reply(lines...)
		case upper == "STARTTLS":
			reply("220 Ready to start TLS")
			tlsConn := tls.Server(conn, &tls.Config{
				Certificates: []tls.Certificate{s.cert},
				MinVersion:   tls.VersionTLS12,
			})
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			reader = bufio.NewReader(tlsConn)
			writer = bufio.NewWriter(tlsConn)
		case strings.HasPrefix(upper, "AUTH PLAIN"):
			s.recordAuth("PLAIN")
			reply("235 2.7.0 Authentication successful")
		case upper == "AUTH LOGIN":
			reply("334 VXNlcm5hbWU6")
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			reply("334 UGFzc3dvcmQ6")
			if _, err := reader.ReadString('\n'); err != nil {
				return
			}
			s.recordAuth("LOGIN")
			reply("235 2.7.0 Authentication successful")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			if s.opts.dropAtMailFrom && (s.opts.dropCount == 0 || n <= s.opts.dropCount) {
				return
			}
			if s.opts.mailFromReply != "" {
				reply(s.opts.mailFromReply)
				continue
			}
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			reply("250 OK")
		case upper == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var msg strings.Builder
			for {
				text, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(text, "\r\n") == "." {
					break
				}
				msg.WriteString(text)
			}
			s.mx.Lock()
			s.messages = append(s.messages, msg.String())
			s.mx.Unlock()
			reply("250 OK")
		case upper == "RSET", upper == "NOOP":
			reply("250 OK")
		case upper == "QUIT":
			s.mx.Lock()
			s.quits++
			s.mx.Unlock()
			reply("221 Bye")
			return
		default:
			reply("500 Syntax error")
		}
	}
}

func (s *testServer) recordAuth(mech string) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.authed = append(s.authed, mech)
}

func (s *testServer) received() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]string(nil), s.messages...)
}

func (s *testServer) auths() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]string(nil), s.authed...)
}

func (s *testServer) quitCount() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.quits
}
