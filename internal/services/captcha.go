package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// turnstileVerifier checks captcha tokens against the Turnstile siteverify endpoint
type turnstileVerifier struct {
	secret    string
	verifyURL string
	client    *http.Client
	logger    *zap.Logger
}

// NewTurnstileVerifier creates a captcha verifier.
// With an empty secret every token is accepted.
func NewTurnstileVerifier(secret, verifyURL string, logger *zap.Logger) *turnstileVerifier {
	return &turnstileVerifier{
		secret:    secret,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

// Enabled reports whether tokens are actually verified
func (v *turnstileVerifier) Enabled() bool {
	return v.secret != ""
}

// Verify reports whether token is accepted for the caller at ip
func (v *turnstileVerifier) Verify(ctx context.Context, token, ip string) bool {
	if !v.Enabled() {
		return true
	}
	if token == "" {
		return false
	}

	ok, err := v.siteVerify(ctx, token, ip)
	if err != nil {
		v.logger.Warn("captcha verification failed", zap.Error(err), zap.String("ip", ip))
		return false
	}
	return ok
}

func (v *turnstileVerifier) siteVerify(ctx context.Context, token, ip string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	form.Set("remoteip", ip)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to call siteverify: %w", err)
	}
	defer resp.Body.Close()

	var outcome struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return false, fmt.Errorf("failed to decode siteverify response: %w", err)
	}
	if !outcome.Success && len(outcome.ErrorCodes) > 0 {
		v.logger.Debug("captcha rejected", zap.Strings("error_codes", outcome.ErrorCodes))
	}

	return outcome.Success, nil
}
