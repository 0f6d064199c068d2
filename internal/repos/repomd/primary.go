package repomd

import (
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/enterstudio/subscription-manager/internal/repos"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// decompressByExt wraps r in a decompressor chosen from the href's
// extension. Plain .xml passes through.
func decompressByExt(r io.Reader, href string) (io.Reader, func() error, error) {
	noop := func() error { return nil }
	ext := strings.ToLower(filepath.Ext(href))
	switch ext {
	case ".gz":
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gr, gr.Close, nil

	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() error { zr.Close(); return nil }, nil

	case ".xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xr, noop, nil

	case ".xml":
		return r, noop, nil

	default:
		return nil, nil, fmt.Errorf("unsupported metadata compression type %s", ext)
	}
}

// parsePrimaryNEVRAs walks a primary.xml stream and returns the NEVRA
// string of every package entry.
func parsePrimaryNEVRAs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		nevras []string

		inPackage                           bool
		name, epoch, version, release, arch string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("parsing primary.xml: %w", err)
		}

		switch elem := tok.(type) {
		case xml.StartElement:
			switch elem.Name.Local {
			case "package":
				inPackage = true
				name, epoch, version, release, arch = "", "", "", "", ""

			case "name":
				if !inPackage {
					continue
				}
				if text, err := readCharData(dec); err == nil {
					name = text
				}

			case "arch":
				if !inPackage {
					continue
				}
				if text, err := readCharData(dec); err == nil {
					arch = text
				}

			case "version":
				if !inPackage {
					continue
				}
				for _, attr := range elem.Attr {
					switch attr.Name.Local {
					case "epoch":
						epoch = attr.Value
					case "ver":
						version = attr.Value
					case "rel":
						release = attr.Value
					}
				}
			}

		case xml.EndElement:
			if elem.Name.Local == "package" && inPackage {
				inPackage = false
				if name != "" && version != "" && arch != "" {
					nevras = append(nevras, repos.FormatNEVRA(name, epoch, version, release, arch))
				}
			}
		}
	}

	return nevras, nil
}

func readCharData(dec *xml.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	if charData, ok := tok.(xml.CharData); ok {
		return string(charData), nil
	}
	return "", nil
}
