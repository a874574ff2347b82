package auth0

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Segments are base64url; some issuers keep the padding.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// ParseExpiry returns the exp claim (unix seconds) carried in the payload
// segment of a three-part access token, or 0 when the claim is absent.
// The signature is not verified: the token is only inspected to know when
// to fetch the next one.
func ParseExpiry(token string) (int64, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: want 3 segments, got %d", ErrMalformedToken, len(parts))
	}
	raw, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return 0, fmt.Errorf("%w: decode payload: %v", ErrMalformedToken, err)
	}
	var claims jwt.MapClaims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return 0, fmt.Errorf("%w: payload is not a JSON object: %v", ErrMalformedToken, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if exp == nil {
		return 0, nil
	}
	return exp.Unix(), nil
}
