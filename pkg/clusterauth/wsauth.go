/*
 * pkg/clusterauth/wsauth.go
 *
 * Helper for negotiating the bearer-token subprotocol during a WebSocket
 * upgrade handshake.
 */

package clusterauth

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// NegotiateSubprotocol inspects the Sec-WebSocket-Protocol header of an
// upgrade request, picks the first entry matching the bearer-token
// subprotocol grammar, and decodes the token it carries. A host's
// websocket.Upgrader.Subprotocols list should include whatever value the
// client actually offered, since gorilla/websocket only accepts upgrades
// that negotiate one of the advertised subprotocols.
func NegotiateSubprotocol(upgrader *websocket.Upgrader, r *http.Request) (token string, ok bool) {
	offered := websocket.Subprotocols(r)
	for _, candidate := range offered {
		if decoded, matched := ExtractSubprotocol(candidate); matched {
			if upgrader != nil {
				upgrader.Subprotocols = ensureSubprotocol(upgrader.Subprotocols, candidate)
			}
			return decoded, true
		}
	}
	return "", false
}

func ensureSubprotocol(existing []string, candidate string) []string {
	for _, s := range existing {
		if strings.EqualFold(s, candidate) {
			return existing
		}
	}
	return append(existing, candidate)
}
