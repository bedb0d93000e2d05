/*
 * pkg/clusterauth/token.go
 *
 * Parses bearer tokens out of HTTP Authorization headers and WebSocket
 * subprotocol strings. Tokens travel base64url-encoded so opaque cluster
 * tokens survive both transports intact.
 */

package clusterauth

import (
	"encoding/base64"
	"regexp"
	"strings"
)

var bearerHeaderPattern = regexp.MustCompile(`(?i)^Bearer\s+(.*)$`)

var subprotocolPattern = regexp.MustCompile(`(?i)^base64url\.bearer\.authorization\.cryostat\.(\S+)$`)

// ExtractBearer parses a bearer token out of the value of an HTTP
// Authorization header. It returns ok=false for a blank/missing header, a
// non-Bearer scheme, or a base64url decoding failure — all three are
// "no token" rather than "invalid token".
func ExtractBearer(header string) (token string, ok bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	match := bearerHeaderPattern.FindStringSubmatch(header)
	if match == nil {
		return "", false
	}
	return decodeToken(match[1])
}

// ExtractSubprotocol parses a bearer token out of a WebSocket subprotocol
// string of the form base64url.bearer.authorization.cryostat.<token>.
func ExtractSubprotocol(subprotocol string) (token string, ok bool) {
	subprotocol = strings.TrimSpace(subprotocol)
	if subprotocol == "" {
		return "", false
	}
	match := subprotocolPattern.FindStringSubmatch(subprotocol)
	if match == nil {
		return "", false
	}
	return decodeToken(match[1])
}

// decodeToken base64url-decodes a captured token fragment, tolerating both
// padded and unpadded encodings, and trims surrounding whitespace.
func decodeToken(encoded string) (string, bool) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return "", false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(encoded)
		if err != nil {
			return "", false
		}
	}

	token := strings.TrimSpace(string(decoded))
	if token == "" {
		return "", false
	}
	return token, true
}
