package main

import (
	"log"
	"net/http"
	"os"
)

// withCACertEndpoint 在 /ca.pem 提供自签名 CA 下载，方便客户端信任
// caFile 为空（非 auto 模式）时原样返回
func withCACertEndpoint(next http.Handler, caFile string) http.Handler {
	if caFile == "" {
		return next
	}

	caData, err := os.ReadFile(caFile)
	if err != nil {
		log.Printf("[tls] WARNING: cannot read CA file %s for /ca.pem endpoint: %v", caFile, err)
		return next
	}

	log.Printf("[tls] CA cert download available at: /ca.pem")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/ca.pem" {
			w.Header().Set("Content-Type", "application/x-pem-file")
			w.Header().Set("Content-Disposition", "attachment; filename=\"mgmt-syncq-ca.pem\"")
			w.WriteHeader(http.StatusOK)
			w.Write(caData)
			return
		}
		next.ServeHTTP(w, r)
	})
}
