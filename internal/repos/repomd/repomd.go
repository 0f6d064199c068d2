// Package repomd implements the repository metadata transport over
// repomd.xml based repositories: inventory loading, metadata parsing,
// artifact downloads and optional signature verification.
package repomd

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/enterstudio/subscription-manager/internal/utils/logger"
)

var log = logger.Logger()

// ErrNoProductIDRecord reports a repository whose repomd.xml carries no
// productid record.
var ErrNoProductIDRecord = errors.New("repository metadata has no productid record")

// parseRepomdRecords walks repomd.xml and returns a map of data type
// (primary, productid, filelists, ...) to the record's location href.
func parseRepomdRecords(r io.Reader) (map[string]string, error) {
	dec := xml.NewDecoder(r)
	records := make(map[string]string)

	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("parsing repomd.xml: %w", err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "data" {
			continue
		}

		var dataType string
		for _, attr := range se.Attr {
			if attr.Name.Local == "type" {
				dataType = attr.Value
				break
			}
		}
		if dataType == "" {
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("skipping repomd data element: %w", err)
			}
			continue
		}

		// Inside <data>, look for <location href="..."/>
		for {
			tok2, err := dec.Token()
			if err != nil {
				if err == io.EOF {
					break
				}
				return nil, fmt.Errorf("parsing repomd.xml: %w", err)
			}
			if ee, ok := tok2.(xml.EndElement); ok && ee.Name.Local == "data" {
				break
			}
			if le, ok := tok2.(xml.StartElement); ok && le.Name.Local == "location" {
				for _, attr := range le.Attr {
					if attr.Name.Local == "href" {
						records[dataType] = attr.Value
					}
				}
			}
		}
	}

	return records, nil
}
