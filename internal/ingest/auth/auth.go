// Package auth resolves and checks the ingest daemon's bearer token. The
// wire token stays a plain shared secret compared in constant time on
// every request, since bcrypt is far too slow to run per-request; a
// bcrypt digest of the same token is computed once at startup and exposed
// through Digest(); no handler or log includes it, and the live token
// value is never echoed back.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/normanking/kaitd/internal/kaitkerr"
)

const component = "ingest.auth"

// Authenticator checks bearer tokens against one resolved secret.
type Authenticator struct {
	token  string
	digest string
}

// Resolve determines the daemon's bearer token: the named environment
// variable if set and non-empty, otherwise the contents of tokenFile. If
// neither yields a token, a new random one is generated and written to
// tokenFile with 0600 permissions.
func Resolve(envVar, tokenFile string) (string, error) {
	if envVar != "" {
		if v := os.Getenv(envVar); v != "" {
			return v, nil
		}
	}

	data, err := os.ReadFile(tokenFile)
	if err == nil {
		if tok := strings.TrimSpace(string(data)); tok != "" {
			return tok, nil
		}
	} else if !os.IsNotExist(err) {
		return "", kaitkerr.Transient(component, "read_token_file", err)
	}

	tok, err := generateToken()
	if err != nil {
		return "", kaitkerr.Transient(component, "generate_token", err)
	}
	if err := os.WriteFile(tokenFile, []byte(tok+"\n"), 0o600); err != nil {
		return "", kaitkerr.Transient(component, "write_token_file", err)
	}
	return tok, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// New constructs an Authenticator over token, computing its bcrypt digest
// once up front.
func New(token string) (*Authenticator, error) {
	sum, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, kaitkerr.Transient(component, "hash_token", err)
	}
	return &Authenticator{token: token, digest: string(sum)}, nil
}

// Digest returns the bcrypt digest of the live token, safe to surface in
// an audit log or status payload.
func (a *Authenticator) Digest() string {
	return a.digest
}

// Check reports whether r carries the expected bearer token.
func (a *Authenticator) Check(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := strings.TrimPrefix(header, prefix)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(a.token)) == 1
}
