package auth

import (
	"errors"
	"fmt"
	"time"

	"voice-orchestrator/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	softphoneTokenTTL = time.Hour
	softphoneCty      = "twilio-fpa;v=1"
)

var ErrSoftphoneNotConfigured = errors.New("softphone token: api key, twiml app or identity missing")

// SoftphoneToken is what the browser client needs to register its voice leg.
type SoftphoneToken struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SoftphoneMinter signs provider access tokens for the browser softphone identity
// that the ring orchestrator dials.
type SoftphoneMinter struct {
	accountSID string
	keySID     string
	keySecret  []byte
	appSID     string
	identity   string
	ttl        time.Duration
}

func NewSoftphoneMinter(cfg config.TwilioConfig, identity string) *SoftphoneMinter {
	return &SoftphoneMinter{
		accountSID: cfg.AccountSID,
		keySID:     cfg.APIKeySID,
		keySecret:  []byte(cfg.APIKeySecret),
		appSID:     cfg.TwiMLAppSID,
		identity:   identity,
		ttl:        softphoneTokenTTL,
	}
}

func (m *SoftphoneMinter) Configured() bool {
	return m != nil && m.accountSID != "" && m.keySID != "" && len(m.keySecret) > 0 && m.appSID != "" && m.identity != ""
}

func (m *SoftphoneMinter) Mint(now time.Time) (SoftphoneToken, error) {
	if !m.Configured() {
		return SoftphoneToken{}, ErrSoftphoneNotConfigured
	}
	exp := now.Add(m.ttl)

	claims := softphoneClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        fmt.Sprintf("%s-%s", m.keySID, uuid.NewString()),
			Issuer:    m.keySID,
			Subject:   m.accountSID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Grants: grants{Identity: m.identity},
	}
	claims.Grants.Voice.Incoming.Allow = true
	claims.Grants.Voice.Outgoing.ApplicationSID = m.appSID

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["cty"] = softphoneCty
	signed, err := t.SignedString(m.keySecret)
	if err != nil {
		return SoftphoneToken{}, err
	}
	return SoftphoneToken{Token: signed, Identity: m.identity, ExpiresAt: exp}, nil
}
