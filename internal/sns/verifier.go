package sns

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

// certURLPattern pins the signing certificate host to the provider's own
// domain. A certificate fetched from anywhere else proves nothing.
var certURLPattern = regexp.MustCompile(`^https://sns\.[a-zA-Z0-9-]+\.amazonaws\.com(\.cn)?/`)

// CertFetcher retrieves a PEM signing certificate.
type CertFetcher interface {
	FetchCert(ctx context.Context, url string) ([]byte, error)
}

// Verifier authenticates notification messages.
type Verifier struct {
	certs CertFetcher
}

// NewVerifier creates a Verifier that fetches certificates over HTTP.
func NewVerifier(httpClient *http.Client) *Verifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Verifier{certs: &httpCertFetcher{client: httpClient}}
}

// NewVerifierWithFetcher creates a Verifier with an injected certificate
// source.
func NewVerifierWithFetcher(certs CertFetcher) *Verifier {
	return &Verifier{certs: certs}
}

// Verify checks the message signature. A nil return means the message was
// signed by the holder of the certificate at SigningCertURL and that URL
// belongs to the provider's domain. Any error means the payload must not be
// processed.
func (v *Verifier) Verify(ctx context.Context, m *Message) error {
	if m.Signature == "" || m.SigningCertURL == "" {
		return errors.New("message is missing signature fields")
	}
	if !certURLPattern.MatchString(m.SigningCertURL) {
		return fmt.Errorf("signing certificate URL %q is not a trusted provider URL", m.SigningCertURL)
	}

	pemBytes, err := v.certs.FetchCert(ctx, m.SigningCertURL)
	if err != nil {
		return fmt.Errorf("failed to fetch signing certificate: %w", err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return errors.New("signing certificate is not valid PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse signing certificate: %w", err)
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return errors.New("signing certificate does not carry an RSA key")
	}

	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return fmt.Errorf("signature is not valid base64: %w", err)
	}

	canonical := []byte(CanonicalString(m))
	switch m.SignatureVersion {
	case "", "1":
		digest := sha1.Sum(canonical)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], sig); err != nil {
			return fmt.Errorf("signature verification failed: %w", err)
		}
	case "2":
		digest := sha256.Sum256(canonical)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
			return fmt.Errorf("signature verification failed: %w", err)
		}
	default:
		return fmt.Errorf("unsupported signature version %q", m.SignatureVersion)
	}
	return nil
}

type httpCertFetcher struct {
	client *http.Client
}

func (f *httpCertFetcher) FetchCert(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("certificate fetch returned HTTP status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
