package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mgmt-syncq/internal/clock"
)

// DefaultCertDir 默认证书目录
const DefaultCertDir = "/etc/mgmt-syncq/certs"

// Options auto 模式证书选项
type Options struct {
	// Dir 证书目录，可由各节点共享
	Dir string

	// NodeID 服务端证书文件名前缀，为空时为 "server"
	NodeID string

	// Hosts 额外 SAN；localhost、回环地址与本机 hostname 总会加入
	Hosts []string

	Organization string

	// ValidFor 服务端证书有效期
	ValidFor time.Duration

	// RenewBefore 剩余有效期不足该值时重新签发
	RenewBefore time.Duration

	Clock clock.Clock
}

func (o *Options) applyDefaults() {
	if o.Dir == "" {
		o.Dir = DefaultCertDir
	}
	if o.NodeID == "" {
		o.NodeID = "server"
	}
	if o.Organization == "" {
		o.Organization = "mgmt-syncq"
	}
	if o.ValidFor <= 0 {
		o.ValidFor = 365 * 24 * time.Hour
	}
	if o.RenewBefore <= 0 || o.RenewBefore >= o.ValidFor {
		o.RenewBefore = o.ValidFor / 12
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
}

// Bundle 本节点使用的证书文件
type Bundle struct {
	CAFile   string
	CertFile string
	KeyFile  string
}

func bundleFor(dir, nodeID string) Bundle {
	name := fileSafe(nodeID)
	return Bundle{
		CAFile:   filepath.Join(dir, caCertName),
		CertFile: filepath.Join(dir, name+".pem"),
		KeyFile:  filepath.Join(dir, name+"-key.pem"),
	}
}

// Ensure 准备本节点的服务端证书
//
// 证书缺失、与私钥不匹配、非当前 CA 签发、即将过期或缺少要求的 SAN 时重新签发。
func Ensure(opts Options) (Bundle, error) {
	opts.applyDefaults()
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return Bundle{}, fmt.Errorf("create cert dir: %w", err)
	}

	now := opts.Clock.Now()
	ca, err := loadOrCreateCA(opts.Dir, opts.Organization, now)
	if err != nil {
		return Bundle{}, err
	}

	b := bundleFor(opts.Dir, opts.NodeID)
	hosts := sanHosts(opts.Hosts)
	reason := reissueReason(b, ca, hosts, now, opts.RenewBefore)
	if reason == "" {
		return b, nil
	}

	log.Printf("[tls] Issuing %s: %s", b.CertFile, reason)
	if err := issue(ca, b, hosts, opts, now); err != nil {
		return Bundle{}, err
	}
	return b, nil
}

// reissueReason 返回需要重新签发的原因，现有证书可用时返回空串
func reissueReason(b Bundle, ca *authority, hosts []string, now time.Time, renewBefore time.Duration) string {
	pair, err := tls.LoadX509KeyPair(b.CertFile, b.KeyFile)
	if err != nil {
		return "no usable key pair"
	}
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return "unparsable certificate"
	}
	if err := leaf.CheckSignatureFrom(ca.cert); err != nil {
		return "signed by a different CA"
	}
	if now.Add(renewBefore).After(leaf.NotAfter) {
		return "expires at " + leaf.NotAfter.UTC().Format(time.RFC3339)
	}
	for _, h := range hosts {
		if err := leaf.VerifyHostname(h); err != nil {
			return "missing SAN " + h
		}
	}
	return ""
}

func issue(ca *authority, b Bundle, hosts []string, opts Options, now time.Time) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate server key: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: randomSerial(),
		Subject: pkix.Name{
			Organization: []string{opts.Organization},
			CommonName:   opts.NodeID,
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(opts.ValidFor),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		return fmt.Errorf("create server cert: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal server key: %w", err)
	}

	// 中途失败时证书与私钥不匹配，下次启动会重新签发
	if err := writeAtomic(b.KeyFile, encodePEM("PRIVATE KEY", keyDER), 0600); err != nil {
		return fmt.Errorf("write server key: %w", err)
	}
	if err := writeAtomic(b.CertFile, encodePEM("CERTIFICATE", der), 0644); err != nil {
		return fmt.Errorf("write server cert: %w", err)
	}
	return nil
}

// sanHosts 去重合并默认 SAN、配置的 hosts 与本机 hostname
func sanHosts(extra []string) []string {
	candidates := append([]string{"localhost", "127.0.0.1", "::1"}, extra...)
	if hostname, err := os.Hostname(); err == nil {
		candidates = append(candidates, hostname)
	}

	seen := make(map[string]bool, len(candidates))
	hosts := make([]string, 0, len(candidates))
	for _, h := range candidates {
		h = strings.TrimSpace(h)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		hosts = append(hosts, h)
	}
	return hosts
}

// fileSafe 节点 ID 转为文件名
func fileSafe(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, id)
}
