package qobuz

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	webPlayerURL = "https://play.qobuz.com"
	apiBaseURL   = "https://www.qobuz.com/api.json/0.2"

	// probeTrackID is a public track used to test a secret.
	probeTrackID = "5966783"
)

var (
	bundlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`<script[^>]+src="([^"]*bundle[^"]*\.js)"`),
		regexp.MustCompile(`"(/resources/\d+\.\d+\.\d+-[^/]+/bundle\.js)"`),
	}
	appIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`production:\{api:\{appId:"(\d{9})"`),
		regexp.MustCompile(`app_id:\s*["'](\d{9})["']`),
	}
	seededSecretPattern = regexp.MustCompile(`\{[^{}]*?seed:"([^"]+)"[^{}]*?info:"([^"]+)"[^{}]*?extras:"([^"]+)"[^{}]*?\}`)
	plainSecretPattern  = regexp.MustCompile(`["']([a-f0-9]{32})["']`)
)

// ErrNoCredentials is returned when the web player bundle yields no usable
// app credentials.
var ErrNoCredentials = errors.New("no qobuz app credentials found")

// Extractor scrapes app credentials from the Qobuz web player.
type Extractor struct {
	HTTP       *http.Client
	PlayerURL  string
	APIBaseURL string
}

// NewExtractor creates an extractor against the public web player.
func NewExtractor() *Extractor {
	return &Extractor{
		HTTP:       &http.Client{Timeout: 10 * time.Second},
		PlayerURL:  webPlayerURL,
		APIBaseURL: apiBaseURL,
	}
}

// Extract finds the app id in the web player bundle and returns it with the
// first secret the API accepts.
func (e *Extractor) Extract(ctx context.Context) (Credentials, error) {
	login, err := e.get(ctx, e.PlayerURL+"/login")
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to fetch login page: %w", err)
	}
	bundlePath, err := findBundlePath(login)
	if err != nil {
		return Credentials{}, err
	}
	if !strings.HasPrefix(bundlePath, "http") {
		bundlePath = e.PlayerURL + bundlePath
	}

	bundle, err := e.get(ctx, bundlePath)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to fetch bundle: %w", err)
	}
	appID, err := findAppID(bundle)
	if err != nil {
		return Credentials{}, err
	}
	secrets := findSecrets(bundle)
	if len(secrets) == 0 {
		return Credentials{}, fmt.Errorf("%w: no secrets in bundle", ErrNoCredentials)
	}

	for _, secret := range secrets {
		if e.validSecret(ctx, appID, secret) {
			log.Info().Str("appId", appID).Msg("Extracted Qobuz app credentials")
			return Credentials{AppID: appID, AppSecret: secret}, nil
		}
	}
	return Credentials{}, fmt.Errorf("%w: no valid secret", ErrNoCredentials)
}

func (e *Extractor) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	resp, err := e.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// validSecret makes a signed file url request. Anything but 400 means the
// signature was accepted.
func (e *Extractor) validSecret(ctx context.Context, appID, secret string) bool {
	params := map[string]string{
		"track_id":  probeTrackID,
		"format_id": "5",
		"intent":    "stream",
	}
	ts, sig := SignRequest(secret, "track/getFileUrl", params, time.Now())
	url := fmt.Sprintf("%s/track/getFileUrl?track_id=%s&format_id=5&intent=stream&request_ts=%s&request_sig=%s&app_id=%s",
		e.APIBaseURL, probeTrackID, ts, sig, appID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := e.HTTP.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode != http.StatusBadRequest
}

func findBundlePath(page string) (string, error) {
	for _, re := range bundlePatterns {
		if m := re.FindStringSubmatch(page); len(m) == 2 {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: bundle URL not found in login page", ErrNoCredentials)
}

func findAppID(bundle string) (string, error) {
	for _, re := range appIDPatterns {
		if m := re.FindStringSubmatch(bundle); len(m) == 2 {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: app ID not found in bundle", ErrNoCredentials)
}

// findSecrets returns seeded secrets first, then plain hex ones, without
// duplicates.
func findSecrets(bundle string) []string {
	var secrets []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			secrets = append(secrets, s)
		}
	}

	for _, m := range seededSecretPattern.FindAllStringSubmatch(bundle, -1) {
		secret, err := decodeSecret(m[1], m[2], m[3])
		if err != nil {
			continue
		}
		add(secret)
	}
	for _, m := range plainSecretPattern.FindAllStringSubmatch(bundle, -1) {
		add(m[1])
	}
	return secrets
}

func decodeSecret(seed, info, extras string) (string, error) {
	var b strings.Builder
	for _, part := range []string{seed, info, extras} {
		decoded, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			return "", err
		}
		b.Write(decoded)
	}
	return b.String(), nil
}

// SignRequest returns the request timestamp and signature for a Qobuz API
// call. Parameters are signed in key order.
func SignRequest(appSecret, method string, params map[string]string, now time.Time) (string, string) {
	ts := strconv.FormatInt(now.Unix(), 10)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(strings.ReplaceAll(method, "/", ""))
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	b.WriteString(ts)
	b.WriteString(appSecret)

	sum := md5.Sum([]byte(b.String()))
	return ts, hex.EncodeToString(sum[:])
}
