package domain

import (
	"regexp"
	"strings"
)

var (
	vendorAirportRe    = regexp.MustCompile(`(?:-|–|—)\s*([A-Z0-9]{3,4})\b`)
	filenamePrefixRe   = regexp.MustCompile(`^([A-Z0-9]{3,4})[-_]`)
	filenameEmbeddedRe = regexp.MustCompile(`(?:^|[-_])([A-Z0-9]{3,4})(?:[-_])`)
)

// InferAirportCode recovers an airport code for display when the parser did
// not extract one: first from the invoice itself, then from a trailing code in
// the vendor name ("Signature Aviation - TEB"), then from the stored file
// name, which operators commonly prefix with the field code.
func InferAirportCode(inv *Invoice, doc *Document) string {
	if inv != nil {
		if a := strings.TrimSpace(inv.AirportCode); a != "" {
			return strings.ToUpper(a)
		}
		if v := strings.TrimSpace(inv.VendorName); v != "" {
			if m := vendorAirportRe.FindStringSubmatch(strings.ToUpper(v)); m != nil {
				return m[1]
			}
		}
	}

	if doc != nil {
		for _, s := range []string{doc.AttachmentFilename, doc.StoragePath, doc.RawFileURL} {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			parts := strings.Split(s, "/")
			base := strings.ToUpper(parts[len(parts)-1])

			if m := filenamePrefixRe.FindStringSubmatch(base); m != nil {
				return m[1]
			}
			if m := filenameEmbeddedRe.FindStringSubmatch(base); m != nil {
				return m[1]
			}
		}
	}

	return ""
}
