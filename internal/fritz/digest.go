package fritz

import (
	"crypto/md5" // #nosec G501 -- TR-064 digest auth is specified with MD5
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// challenge is a parsed WWW-Authenticate digest challenge as sent by the
// FRITZ!Box on the first unauthenticated request.
type challenge struct {
	realm     string
	nonce     string
	qop       string
	opaque    string
	algorithm string
}

func parseChallenge(header string) (*challenge, error) {
	scheme, params, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Digest") {
		return nil, fmt.Errorf("unsupported authentication scheme in challenge %q", header)
	}

	ch := &challenge{}
	for key, value := range parseAuthParams(params) {
		switch strings.ToLower(key) {
		case "realm":
			ch.realm = value
		case "nonce":
			ch.nonce = value
		case "qop":
			ch.qop = value
		case "opaque":
			ch.opaque = value
		case "algorithm":
			ch.algorithm = value
		}
	}

	if ch.realm == "" || ch.nonce == "" {
		return nil, fmt.Errorf("digest challenge missing realm or nonce")
	}
	if ch.algorithm != "" && !strings.EqualFold(ch.algorithm, "MD5") {
		return nil, fmt.Errorf("unsupported digest algorithm %q", ch.algorithm)
	}

	return ch, nil
}

// parseAuthParams splits a comma separated list of key=value pairs, where
// values may be quoted and quoted values may contain commas.
func parseAuthParams(s string) map[string]string {
	params := make(map[string]string)

	for len(s) > 0 {
		s = strings.TrimLeft(s, " ,")
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(s[:eq])
		s = s[eq+1:]

		var value string
		if strings.HasPrefix(s, `"`) {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				value, s = s[1:], ""
			} else {
				value, s = s[1:end+1], s[end+2:]
			}
		} else {
			end := strings.IndexByte(s, ',')
			if end < 0 {
				value, s = s, ""
			} else {
				value, s = s[:end], s[end+1:]
			}
			value = strings.TrimSpace(value)
		}

		if key != "" {
			params[key] = value
		}
	}

	return params
}

// authorize answers the challenge for one request, returning the value of
// the Authorization header.
func (ch *challenge) authorize(method, uri, username, password string) (string, error) {
	cnonce, err := randomHex(8)
	if err != nil {
		return "", err
	}

	const nc = "00000001"
	ha1 := md5hex(username + ":" + ch.realm + ":" + password)
	ha2 := md5hex(method + ":" + uri)

	var response string
	useQop := qopAuth(ch.qop)
	if useQop {
		response = md5hex(strings.Join([]string{ha1, ch.nonce, nc, cnonce, "auth", ha2}, ":"))
	} else {
		response = md5hex(ha1 + ":" + ch.nonce + ":" + ha2)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `Digest username=%q, realm=%q, nonce=%q, uri=%q, response=%q`,
		username, ch.realm, ch.nonce, uri, response)
	if useQop {
		fmt.Fprintf(&sb, `, qop=auth, nc=%s, cnonce=%q`, nc, cnonce)
	}
	if ch.opaque != "" {
		fmt.Fprintf(&sb, `, opaque=%q`, ch.opaque)
	}
	if ch.algorithm != "" {
		fmt.Fprintf(&sb, `, algorithm=%s`, ch.algorithm)
	}

	return sb.String(), nil
}

// qopAuth reports whether the challenge offers quality of protection
// "auth". The box may offer a list such as "auth,auth-int".
func qopAuth(qop string) bool {
	for _, option := range strings.Split(qop, ",") {
		if strings.TrimSpace(option) == "auth" {
			return true
		}
	}
	return false
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s)) // #nosec G401
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating client nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
