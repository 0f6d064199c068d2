// Package productcert decodes productid artifacts into product
// certificates and extracts the numeric product ID carried in the
// vendor X.509 extension.
package productcert

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/enterstudio/subscription-manager/internal/utils/logger"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

var log = logger.Logger()

var (
	// ErrDecode reports an artifact that could not be decompressed.
	ErrDecode = errors.New("productid artifact decode failed")
	// ErrMalformedCertificate reports bytes that do not parse as a PEM X.509 certificate.
	ErrMalformedCertificate = errors.New("malformed product certificate")
	// ErrNoProductExtension reports a certificate without the product OID extension.
	ErrNoProductExtension = errors.New("certificate carries no product extension")
)

// productOIDPrefix is the arc under which product metadata extensions live.
// The product ID is the component one past the prefix's "1" marker, e.g.
// 1.3.6.1.4.1.2312.9.1.<product-id>.<field>.
const productOIDPrefix = "1.3.6.1.4.1.2312.9.1"

// productIDComponent is the index of the product ID in the dotted OID.
const productIDComponent = 9

var magicTable = []struct {
	format string
	magic  []byte
}{
	{"gzip", []byte{0x1f, 0x8b}},
	{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{"xz", []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
}

// sniffFormat identifies the compression format from leading magic bytes.
// An empty string means the payload is not compressed.
func sniffFormat(head []byte) string {
	for _, entry := range magicTable {
		if bytes.HasPrefix(head, entry.magic) {
			return entry.format
		}
	}
	return ""
}

// Decompress reads the productid artifact at path and returns its
// uncompressed bytes. The compression format is detected from magic
// bytes, so a plain PEM file passes through unchanged. A truncated
// trailing block is tolerated because some mirrors serve productid
// payloads whose last gzip member is cut short.
func Decompress(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		log.Errorf("Failed to open productid artifact %s: %v", path, err)
		return nil, fmt.Errorf("opening productid artifact %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 6)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("reading productid artifact %s: %w", path, err)
	}
	head = head[:n]

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding productid artifact %s: %w", path, err)
	}

	format := sniffFormat(head)
	var reader io.Reader
	switch format {
	case "gzip":
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
		}
		defer gr.Close()
		reader = gr

	case "zstd":
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
		}
		defer zr.Close()
		reader = zr

	case "xz":
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
		}
		reader = xr

	default:
		reader = f
	}

	data, err := readAll(reader)
	if err != nil {
		log.Errorf("Failed to decode productid artifact %s (%s): %v", path, displayFormat(format), err)
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}

	log.Debugf("Decoded productid artifact %s: format=%s, %d bytes", path, displayFormat(format), len(data))
	return data, nil
}

func displayFormat(format string) string {
	if format == "" {
		return "plain"
	}
	return format
}

// readAll drains r in fixed chunks, keeping the bytes read so far when
// the stream ends mid-block.
func readAll(r io.Reader) ([]byte, error) {
	var out bytes.Buffer
	chunk := make([]byte, 8*1024)
	for {
		n, err := r.Read(chunk)
		out.Write(chunk[:n])
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return out.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// ExtractProductID parses pemData as a PEM-encoded X.509 certificate and
// returns the numeric product ID found in its product OID extension.
func ExtractProductID(pemData []byte) (string, error) {
	block, _ := pem.Decode(pemData)
	if block == nil || block.Type != "CERTIFICATE" {
		return "", fmt.Errorf("%w: no CERTIFICATE PEM block", ErrMalformedCertificate)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCertificate, err)
	}

	// Only the first extension under the product arc counts.
	for _, ext := range cert.Extensions {
		oid := ext.Id.String()
		if !strings.HasPrefix(oid, productOIDPrefix) {
			continue
		}
		parts := strings.Split(oid, ".")
		if len(parts) <= productIDComponent {
			return "", fmt.Errorf("%w: product OID %s too short", ErrMalformedCertificate, oid)
		}
		productID := parts[productIDComponent]
		log.Debugf("Found product extension %s, product ID %s", oid, productID)
		return productID, nil
	}

	return "", fmt.Errorf("%w: subject %s", ErrNoProductExtension, cert.Subject.CommonName)
}
