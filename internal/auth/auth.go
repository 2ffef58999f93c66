// Package auth validates the first inbound frame of a session against
// the configured per-role secret.
package auth

import (
	"crypto/subtle"

	"github.com/rigshare/rigshare/internal/gate"
	"github.com/rigshare/rigshare/internal/obs"
)

// Verifier holds the two configured secrets. Sharer and status sessions
// share one secret, the controller has its own. Secrets are immutable
// after construction.
type Verifier struct {
	sharerSecret     []byte
	controllerSecret []byte
}

func NewVerifier(sharerSecret, controllerSecret string) *Verifier {
	return &Verifier{
		sharerSecret:     []byte(sharerSecret),
		controllerSecret: []byte(controllerSecret),
	}
}

// Verify compares the first frame of a session against the secret for
// role, in constant time. The check runs exactly once per transport; on
// a mismatch the caller closes the transport, no retry. An empty
// configured secret never matches.
func (v *Verifier) Verify(role gate.Role, firstFrame []byte) bool {
	secret := v.sharerSecret
	if role == gate.Controller {
		secret = v.controllerSecret
	}
	if len(secret) == 0 {
		return false
	}
	if subtle.ConstantTimeCompare(firstFrame, secret) != 1 {
		obs.AuthFailuresTotal.WithLabelValues(role.String()).Inc()
		return false
	}
	return true
}
