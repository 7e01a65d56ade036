package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the operator bearer token claims issued by the external auth system.
// Subject carries the operator id.
type Claims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
}

// voiceGrant follows the provider's access-token grant layout.
type voiceGrant struct {
	Incoming struct {
		Allow bool `json:"allow"`
	} `json:"incoming"`
	Outgoing struct {
		ApplicationSID string `json:"application_sid"`
	} `json:"outgoing"`
}

type grants struct {
	Identity string     `json:"identity"`
	Voice    voiceGrant `json:"voice"`
}

type softphoneClaims struct {
	jwt.RegisteredClaims

	Grants grants `json:"grants"`
}
