// Package handshake implements the WAMP session-establishment handshake:
// the acceptor's server-side HELLO→CHALLENGE/WELCOME state machine and
// the joiner's client-side dual.
package handshake

// Authenticator is the router-side hook for validating a client's
// authentication attempt. A nil Authenticator means anonymous-only: every
// HELLO is approved without a challenge.
//
// Given the method the client advertised and its claimed identity,
// Challenge supplies the challenge parameters sent in CHALLENGE, and
// Authenticate either approves (returning the authrole and extra WELCOME
// details) or rejects with an error.
// No secret comparison beyond what this interface exposes belongs to the
// session/acceptor machinery itself.
type Authenticator interface {
	// Methods lists the auth methods this authenticator is willing to
	// negotiate, in preference order. "anonymous" is implied if empty.
	Methods() []string

	// Challenge is called once HELLO names an auth method other than
	// anonymous. It returns the CHALLENGE.Extra map sent to the client,
	// or an error to abort with wamp.error.authentication_failed.
	Challenge(realm, authid, method string, helloDetails map[string]interface{}) (extra map[string]interface{}, err error)

	// Authenticate validates the client's AUTHENTICATE signature against
	// the challenge previously issued, returning the final authrole (and
	// any WELCOME details to merge in) on success.
	Authenticate(realm, authid, method, signature string, authExtra map[string]interface{}) (authrole string, welcomeDetails map[string]interface{}, err error)
}

// AnonymousAuthenticator approves every HELLO with no challenge, assigning
// a fixed authrole. Accept uses it when it is given a nil Authenticator.
type AnonymousAuthenticator struct {
	AuthRole string
}

func (a AnonymousAuthenticator) Methods() []string { return nil }

func (a AnonymousAuthenticator) Challenge(realm, authid, method string, helloDetails map[string]interface{}) (map[string]interface{}, error) {
	return nil, nil
}

func (a AnonymousAuthenticator) Authenticate(realm, authid, method, signature string, authExtra map[string]interface{}) (string, map[string]interface{}, error) {
	role := a.AuthRole
	if role == "" {
		role = "anonymous"
	}
	return role, nil, nil
}
