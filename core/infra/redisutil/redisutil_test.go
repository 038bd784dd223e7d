package redisutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestParseOptionsTLSFromEnv(t *testing.T) {
	cases := []struct {
		name    string
		env     func(t *testing.T)
		wantTLS bool
		wantErr bool
	}{
		{name: "plain", env: func(*testing.T) {}},
		{name: "insecure", env: func(t *testing.T) { t.Setenv(envRedisTLSInsecure, "yes") }, wantTLS: true},
		{name: "server name", env: func(t *testing.T) { t.Setenv(envRedisTLSServerName, "cache.internal") }, wantTLS: true},
		{name: "cert without key", env: func(t *testing.T) {
			certPath, _ := writeTempCert(t, t.TempDir())
			t.Setenv(envRedisTLSCert, certPath)
		}, wantErr: true},
		{name: "missing ca file", env: func(t *testing.T) {
			t.Setenv(envRedisTLSCA, filepath.Join(t.TempDir(), "absent.pem"))
		}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.env(t)
			opts, err := ParseOptions("redis://localhost:6379/0")
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOptions: %v", err)
			}
			if (opts.TLSConfig != nil) != tc.wantTLS {
				t.Fatalf("tls config = %v, want present=%v", opts.TLSConfig, tc.wantTLS)
			}
		})
	}
}

func TestParseOptionsClientCertificate(t *testing.T) {
	certPath, keyPath := writeTempCert(t, t.TempDir())
	t.Setenv(envRedisTLSCA, certPath)
	t.Setenv(envRedisTLSCert, certPath)
	t.Setenv(envRedisTLSKey, keyPath)

	opts, err := ParseOptions("redis://localhost:6379")
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.RootCAs == nil {
		t.Fatalf("expected root CAs")
	}
	if len(opts.TLSConfig.Certificates) != 1 {
		t.Fatalf("expected one client certificate, got %d", len(opts.TLSConfig.Certificates))
	}
}

func TestParseOptionsBadURL(t *testing.T) {
	if _, err := ParseOptions("http://nope"); err == nil {
		t.Fatalf("expected error for non-redis url")
	}
}

func TestNewClientSingleAndCluster(t *testing.T) {
	single, err := NewClient("redis://localhost:6379")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer single.Close()
	if _, ok := single.(*redis.Client); !ok {
		t.Fatalf("expected single client, got %T", single)
	}

	t.Setenv(envRedisClusterAddrs, "10.0.0.1:6379,10.0.0.2:6379")
	cluster, err := NewClient("redis://localhost:6379")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer cluster.Close()
	if _, ok := cluster.(*redis.ClusterClient); !ok {
		t.Fatalf("expected cluster client, got %T", cluster)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList("a:1, b:2\n c:3")
	if len(got) != 3 || got[0] != "a:1" || got[2] != "c:3" {
		t.Fatalf("unexpected addrs: %v", got)
	}
	if len(splitList("  ")) != 0 {
		t.Fatalf("expected no addrs")
	}
}

func writeTempCert(t *testing.T, dir string) (string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(7),
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPath := filepath.Join(dir, "redis.crt")
	keyPath := filepath.Join(dir, "redis.key")
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}
