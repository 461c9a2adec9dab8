package helpers

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Certificates are the PEM files written by GenerateCertificates.
type Certificates struct {
	CACert     string
	ServerCert string
	ServerKey  string
	ClientCert string
	ClientKey  string
}

// GenerateCertificates writes a throwaway CA plus a server and a client
// certificate signed by it into dir. The server certificate is valid for
// "metron", "localhost" and 127.0.0.1.
func GenerateCertificates(dir string) (Certificates, error) {
	certs := Certificates{
		CACert:     filepath.Join(dir, "CA.crt"),
		ServerCert: filepath.Join(dir, "server.crt"),
		ServerKey:  filepath.Join(dir, "server.key"),
		ClientCert: filepath.Join(dir, "client.crt"),
		ClientKey:  filepath.Join(dir, "client.key"),
	}

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return certs, err
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "tallier-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return certs, err
	}
	if err := writePEM(certs.CACert, "CERTIFICATE", caDER); err != nil {
		return certs, err
	}
	ca, err := x509.ParseCertificate(caDER)
	if err != nil {
		return certs, err
	}

	leaves := []struct {
		serial   int64
		name     string
		usage    x509.ExtKeyUsage
		certPath string
		keyPath  string
	}{
		{2, "metron", x509.ExtKeyUsageServerAuth, certs.ServerCert, certs.ServerKey},
		{3, "tallier", x509.ExtKeyUsageClientAuth, certs.ClientCert, certs.ClientKey},
	}
	for _, leaf := range leaves {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return certs, err
		}
		template := &x509.Certificate{
			SerialNumber: big.NewInt(leaf.serial),
			Subject:      pkix.Name{CommonName: leaf.name},
			NotBefore:    time.Now().Add(-time.Hour),
			NotAfter:     time.Now().Add(24 * time.Hour),
			KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
			ExtKeyUsage:  []x509.ExtKeyUsage{leaf.usage},
			DNSNames:     []string{leaf.name, "localhost"},
			IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		}
		der, err := x509.CreateCertificate(rand.Reader, template, ca, &key.PublicKey, caKey)
		if err != nil {
			return certs, err
		}
		if err := writePEM(leaf.certPath, "CERTIFICATE", der); err != nil {
			return certs, err
		}
		keyDER, err := x509.MarshalECPrivateKey(key)
		if err != nil {
			return certs, err
		}
		if err := writePEM(leaf.keyPath, "EC PRIVATE KEY", keyDER); err != nil {
			return certs, err
		}
	}

	return certs, nil
}

func writePEM(path, blockType string, der []byte) error {
	return os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}), 0600)
}
