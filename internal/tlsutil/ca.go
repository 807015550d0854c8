// Package tlsutil 管理接口的 TLS 证书
//
// auto 模式下证书目录可由集群各节点共享：CA 只生成一次，
// 每个节点用共享 CA 签发自己的服务端证书（文件名带节点 ID），
// 客户端信任 /ca.pem 后即可访问任一节点。
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

const (
	caCertName = "ca.pem"
	caKeyName  = "ca-key.pem"
	caValidFor = 10 * 365 * 24 * time.Hour
)

// 其它节点正在写 CA 时的等待
const (
	caWaitAttempts = 20
	caWaitInterval = 100 * time.Millisecond
)

// authority 签发服务端证书的 CA
type authority struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

// loadOrCreateCA 读取目录中的 CA，不存在时生成
//
// 私钥以独占方式发布：多个节点同时启动时只有一个生成成功，
// 其余节点等待并读取它写入的 CA。
func loadOrCreateCA(dir, org string, now time.Time) (*authority, error) {
	certFile := filepath.Join(dir, caCertName)
	keyFile := filepath.Join(dir, caKeyName)

	ca, err := loadCA(certFile, keyFile)
	if err == nil {
		return ca, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: randomSerial(),
		Subject: pkix.Name{
			Organization: []string{org},
			CommonName:   org + " CA",
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(caValidFor),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create CA cert: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal CA key: %w", err)
	}

	if err := publishExclusive(keyFile, encodePEM("PRIVATE KEY", keyDER), 0600); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return waitCA(certFile, keyFile)
		}
		return nil, fmt.Errorf("write CA key: %w", err)
	}
	if err := writeAtomic(certFile, encodePEM("CERTIFICATE", der), 0644); err != nil {
		return nil, fmt.Errorf("write CA cert: %w", err)
	}
	log.Printf("[tls] Generated cluster CA %s", certFile)

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &authority{cert: cert, key: key}, nil
}

// waitCA 等待其它节点写完 CA 证书
func waitCA(certFile, keyFile string) (*authority, error) {
	var err error
	for i := 0; i < caWaitAttempts; i++ {
		var ca *authority
		if ca, err = loadCA(certFile, keyFile); err == nil {
			return ca, nil
		}
		time.Sleep(caWaitInterval)
	}
	return nil, fmt.Errorf("CA key %s exists but CA cert is unusable (remove both to regenerate): %w", keyFile, err)
}

func loadCA(certFile, keyFile string) (*authority, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%s: no certificate PEM block", certFile)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", certFile, err)
	}
	if !cert.IsCA {
		return nil, fmt.Errorf("%s is not a CA certificate", certFile)
	}

	block, _ = pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("%s: no key PEM block", keyFile)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", keyFile, err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported key type %T", keyFile, parsed)
	}
	return &authority{cert: cert, key: key}, nil
}

func randomSerial() *big.Int {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return big.NewInt(time.Now().UnixNano())
	}
	return n
}

func encodePEM(blockType string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
}

// writeAtomic 先写临时文件再 rename，其它节点不会读到半个文件
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(filepath.Dir(path), data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// publishExclusive 目标已存在时返回 fs.ErrExist
func publishExclusive(path string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(filepath.Dir(path), data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	return os.Link(tmp, path)
}

func writeTemp(dir string, data []byte, perm os.FileMode) (string, error) {
	f, err := os.CreateTemp(dir, ".tls-*")
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
