package tlsutil

import (
	"crypto/tls"
	"fmt"
	"strings"
)

// 证书来源
const (
	ModeOff   = "off"
	ModeAuto  = "auto"
	ModeFiles = "files"
)

// ParseHosts 解析逗号分隔的 SAN 列表
func ParseHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// ServerConfig 加载证书与私钥，返回管理接口使用的 tls.Config
func ServerConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Resolve 按模式准备证书，返回 tls.Config 与可供下载的 CA 文件（仅 auto 模式）
//
// mode=off 时返回 nil, "", nil。
func Resolve(mode string, opts Options, certFile, keyFile string) (*tls.Config, string, error) {
	switch mode {
	case ModeOff, "":
		return nil, "", nil
	case ModeAuto:
		b, err := Ensure(opts)
		if err != nil {
			return nil, "", err
		}
		cfg, err := ServerConfig(b.CertFile, b.KeyFile)
		if err != nil {
			return nil, "", err
		}
		return cfg, b.CAFile, nil
	case ModeFiles:
		if certFile == "" || keyFile == "" {
			return nil, "", fmt.Errorf("tls mode %q requires cert_file and key_file", mode)
		}
		cfg, err := ServerConfig(certFile, keyFile)
		if err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	default:
		return nil, "", fmt.Errorf("unsupported tls mode %q", mode)
	}
}
