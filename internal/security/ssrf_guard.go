// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrBlockedURL はURLが取得対象として許可されないことを示す。
var ErrBlockedURL = errors.New("security: blocked url")

// blockedPrefixes は取得先として許可しないアドレス範囲。
// クラウドメタデータ(169.254.169.254)はリンクローカルに含まれる。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// blockedHostSuffixes は名前解決前に拒否するホスト名の接尾辞。
var blockedHostSuffixes = []string{"localhost", ".local", ".internal"}

// SSRFGuard はOAuthプロバイダが返したプロフィール画像URLを取得する際のSSRF対策。
// ValidateURLでの静的な検査と、NewSafeClientが返すクライアントの接続時検査の二段で防ぐ。
type SSRFGuard struct {
	allowedHostSuffixes []string
}

// NewSSRFGuard はSSRFGuardを生成する。
// allowedHostSuffixesを指定した場合、ホスト名がいずれかに一致するURLだけを許可する
// （例: "googleusercontent.com" はlh3.googleusercontent.comに一致する）。
func NewSSRFGuard(allowedHostSuffixes ...string) *SSRFGuard {
	suffixes := make([]string, 0, len(allowedHostSuffixes))
	for _, s := range allowedHostSuffixes {
		if s = strings.ToLower(strings.Trim(s, ". ")); s != "" {
			suffixes = append(suffixes, s)
		}
	}
	return &SSRFGuard{allowedHostSuffixes: suffixes}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlがDNS解決後のIPアドレスを接続直前に検査するため、DNS再バインディングも防げる。
// 接続先はhttp/httpsの80/443番ポートに限る。
// maxResponseSizeが正の場合、レスポンスボディはそのバイト数で打ち切られる。
func (g *SSRFGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	client := safeurl.Client(config).Client
	if maxResponseSize > 0 {
		client.Transport = &limitedBodyTransport{base: client.Transport, limit: maxResponseSize}
	}
	return client
}

// ValidateURL はURLを名前解決せずに検査する。
// 許可しない場合はErrBlockedURLをラップしたエラーを返す。
func (g *SSRFGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty url", ErrBlockedURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlockedURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q", ErrBlockedURL, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in url", ErrBlockedURL)
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrBlockedURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		if slices.ContainsFunc(blockedPrefixes, func(p netip.Prefix) bool { return p.Contains(addr) }) {
			return fmt.Errorf("%w: address %s", ErrBlockedURL, addr)
		}
		if len(g.allowedHostSuffixes) > 0 {
			return fmt.Errorf("%w: ip literal not in allowed hosts", ErrBlockedURL)
		}
		return nil
	}

	if slices.ContainsFunc(blockedHostSuffixes, func(s string) bool { return hasHostSuffix(host, strings.TrimPrefix(s, ".")) }) {
		return fmt.Errorf("%w: host %s", ErrBlockedURL, host)
	}
	if len(g.allowedHostSuffixes) > 0 &&
		!slices.ContainsFunc(g.allowedHostSuffixes, func(s string) bool { return hasHostSuffix(host, s) }) {
		return fmt.Errorf("%w: host %s not allowed", ErrBlockedURL, host)
	}
	return nil
}

// hasHostSuffix はhostがsuffixそのものか、そのサブドメインであるかを返す。
func hasHostSuffix(host, suffix string) bool {
	return host == suffix || strings.HasSuffix(host, "."+suffix)
}

// limitedBodyTransport はレスポンスボディの読み取りを上限バイト数で打ち切る。
type limitedBodyTransport struct {
	base  http.RoundTripper
	limit int64
}

func (t *limitedBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = &limitedBody{Reader: io.LimitReader(resp.Body, t.limit), closer: resp.Body}
	return resp, nil
}

type limitedBody struct {
	io.Reader
	closer io.Closer
}

func (b *limitedBody) Close() error { return b.closer.Close() }
