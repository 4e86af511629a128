package sharelink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer creates and validates signed proposal share tokens handed to
// recipients of LINK sends. The token binds a send record to the version it
// transmitted so the viewer always resolves the frozen snapshot.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner constructs a signer with the provided secret and TTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Generate returns a signed token referencing the send and version.
func (s *Signer) Generate(sendID string, version int) (string, time.Time, error) {
	if sendID == "" || version < 1 {
		return "", time.Time{}, fmt.Errorf("sendID and version required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	payload := fmt.Sprintf("%s|%d|%d", sendID, version, expiresAt.Unix())
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	token := strings.Join([]string{sendID, strconv.Itoa(version), strconv.FormatInt(expiresAt.Unix(), 10), signature}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the embedded send ID and version.
func (s *Signer) Parse(token string) (sendID string, version int, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", 0, fmt.Errorf("invalid token format")
	}
	sendID = parts[0]

	version, err = strconv.Atoi(parts[1])
	if err != nil || version < 1 {
		return "", 0, fmt.Errorf("invalid version")
	}
	expUnix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid timestamp")
	}

	payload := fmt.Sprintf("%s|%s|%s", parts[0], parts[1], parts[2])
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(parts[3])) {
		return "", 0, fmt.Errorf("invalid token signature")
	}
	if time.Now().After(time.Unix(expUnix, 0)) {
		return "", 0, fmt.Errorf("token expired")
	}
	return sendID, version, nil
}
