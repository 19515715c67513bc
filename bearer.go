package gpsjwt

import (
	"errors"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", newError(ErrCodeMalformedToken, errors.New("no authorization header provided"))
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", newError(ErrCodeMalformedToken, errors.New("expected bearer authorization"))
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", newError(ErrCodeMalformedToken, errors.New("bearer token is empty"))
	}
	return token, nil
}

// SetBearer sets the Authorization header of req to carry token.
func SetBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", bearerPrefix+token)
}
