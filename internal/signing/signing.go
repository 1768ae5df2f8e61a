// Package signing issues and checks HMAC signed export links, so a CSV can be
// fetched without a bearer token until the link expires.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrMissing means the link lacks one of its query parameters.
	ErrMissing = errors.New("missing link parameters")
	// ErrExpired means the link's expiry has passed.
	ErrExpired = errors.New("link expired")
	// ErrInvalid means the signature does not match the link parameters.
	ErrInvalid = errors.New("invalid signature")
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature binding an upload to its account and expiry.
func (s *Signer) Sign(uploadID, accountID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%s:%d", uploadID, accountID, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Link is a signed reference to one upload's export.
type Link struct {
	UploadID  string
	AccountID string
	Expires   time.Time
	Signature string
}

// Issue signs a link valid for ttl from now.
func (s *Signer) Issue(uploadID, accountID string, now time.Time, ttl time.Duration) Link {
	exp := now.Add(ttl).Unix()
	return Link{
		UploadID:  uploadID,
		AccountID: accountID,
		Expires:   time.Unix(exp, 0).UTC(),
		Signature: s.Sign(uploadID, accountID, exp),
	}
}

// Query encodes the link as URL parameters.
func (l Link) Query() url.Values {
	q := url.Values{}
	q.Set("upload", l.UploadID)
	q.Set("account", l.AccountID)
	q.Set("expires", strconv.FormatInt(l.Expires.Unix(), 10))
	q.Set("signature", l.Signature)
	return q
}

// Verify parses the link parameters and checks expiry and signature.
func (s *Signer) Verify(q url.Values, now time.Time) (Link, error) {
	uploadID, accountID := q.Get("upload"), q.Get("account")
	expires, signature := q.Get("expires"), q.Get("signature")
	if uploadID == "" || accountID == "" || expires == "" || signature == "" {
		return Link{}, ErrMissing
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return Link{}, ErrInvalid
	}
	if time.Unix(exp, 0).Before(now) {
		return Link{}, ErrExpired
	}
	expected := s.Sign(uploadID, accountID, exp)
	// hmac.Equal is constant time.
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return Link{}, ErrInvalid
	}
	return Link{UploadID: uploadID, AccountID: accountID, Expires: time.Unix(exp, 0).UTC(), Signature: signature}, nil
}
