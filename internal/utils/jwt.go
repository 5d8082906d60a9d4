package utils // package utils provides helper functions for token creation and verification

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA-256 hashing for refresh tokens
    "encoding/hex"  // hex encoding and decoding functions
    "errors"        // sentinel error for invalid tokens
    "strconv"       // subject id conversion
    "time"          // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
)

// ErrTokenInvalid is the single sentinel returned by VerifyAccessToken
// for every failure mode: malformed token, wrong signing method,
// signature mismatch and expiry.  Callers must not be able to tell
// these apart, so no more specific error ever escapes.
var ErrTokenInvalid = errors.New("token invalid")

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Access tokens are
// short-lived and sent in the Authorization header when calling
// protected endpoints.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// Identity is the verified claim set extracted from a valid access
// token: who the subject is and which role they hold.  It is immutable
// once issued; verification never rewrites a token.
type Identity struct {
    SubjectID uint64 // the "sub" claim
    Role      string // the "role" claim
}

// RefreshToken represents a long-lived token used to obtain new access
// tokens.  The Raw field contains the raw token string returned to the
// client.  In the database only a SHA-256 hash of the raw string is
// stored.
type RefreshToken struct {
    Raw string    // raw token string returned to the client
    Exp time.Time // UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user.  It takes
// the signing secret, the user ID, the user's role, and a TTL in
// minutes.  The JWT carries the standard claims: subject (sub), role,
// expiration (exp) and issued at (iat), with exp = iat + TTL.  Signing
// is deterministic over the claim set and performs no I/O.
func NewAccessToken(secret string, userID uint64, role string, ttlMin int) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":  strconv.FormatUint(userID, 10),
        "role": role,
        "exp":  exp.Unix(),
        "iat":  now.Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// VerifyAccessToken recomputes the signature of a serialized token and
// checks it against the secret, then checks that the token has not
// expired (the jwt library validates exp during parsing).  On success
// the embedded identity is returned.  Every failure collapses to
// ErrTokenInvalid so the caller cannot use the error as an oracle for
// why a token was rejected.
func VerifyAccessToken(secret, raw string) (Identity, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        // Reject any signing method other than HMAC before touching
        // the signature.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrTokenInvalid
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return Identity{}, ErrTokenInvalid
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return Identity{}, ErrTokenInvalid
    }
    sub, ok := claims["sub"].(string)
    if !ok {
        return Identity{}, ErrTokenInvalid
    }
    id, err := strconv.ParseUint(sub, 10, 64)
    if err != nil || id == 0 {
        return Identity{}, ErrTokenInvalid
    }
    role, ok := claims["role"].(string)
    if !ok || role == "" {
        return Identity{}, ErrTokenInvalid
    }
    return Identity{SubjectID: id, Role: role}, nil
}

// NewRefreshToken returns a cryptographically secure random token (raw)
// and its expiration time.  Refresh tokens live longer than access
// tokens and are exchanged for new access tokens.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
    raw, err := randomHex(48) // 48 bytes -> 96 hex chars
    if err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{
        Raw: raw,
        Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
    }, nil
}

// HashRefreshRaw returns the SHA-256 hash of the raw refresh token as a
// hex string.  Storing only the hash prevents attackers from using a
// stolen database to refresh sessions.
func HashRefreshRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
