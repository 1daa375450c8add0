package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"

	ythttp "ytbulk/http"
)

// DefaultTokenInfoURL is Google's access token introspection endpoint.
const DefaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// TokenValidator checks whether an access token is still accepted.
type TokenValidator interface {
	Validate(ctx context.Context, tok *oauth2.Token) error
}

// TokenInfoValidator asks the tokeninfo endpoint about the access token.
type TokenInfoValidator struct {
	Client *ythttp.Client
	// URL overrides DefaultTokenInfoURL.
	URL string
}

type tokenInfo struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ExpiresIn        string `json:"expires_in"`
}

// Validate returns nil if the endpoint recognizes the token.
func (v *TokenInfoValidator) Validate(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("empty access token")
	}
	endpoint := v.URL
	if endpoint == "" {
		endpoint = DefaultTokenInfoURL
	}

	resp, err := v.Client.Get(ctx, endpoint+"?access_token="+url.QueryEscape(tok.AccessToken))
	if err != nil {
		return fmt.Errorf("tokeninfo: %w", err)
	}

	var info tokenInfo
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return fmt.Errorf("tokeninfo: decode response: %w", err)
	}
	if info.Error != "" {
		return fmt.Errorf("tokeninfo: %s %s", info.Error, info.ErrorDescription)
	}
	return nil
}
