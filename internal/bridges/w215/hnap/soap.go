package hnap

import (
	"bytes"
	"encoding/xml"
	"strings"
)

const (
	// Namespace is the HNAP1 XML namespace and SOAPAction prefix.
	Namespace = "http://purenetworks.com/HNAP1/"

	envelopeOpen = `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" ` +
		`xmlns:xsd="http://www.w3.org/2001/XMLSchema" ` +
		`xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>`
	envelopeClose = `</soap:Body></soap:Envelope>`
)

// param is one child element of a request.
type param struct {
	name  string
	value string
}

// soapAction returns the quoted SOAPAction header value for a method.
func soapAction(method string) string {
	return `"` + Namespace + method + `"`
}

// buildEnvelope renders a request body for method with the given children.
func buildEnvelope(method string, params ...param) []byte {
	var b bytes.Buffer
	b.WriteString(envelopeOpen)
	b.WriteString("<" + method + ` xmlns="` + Namespace + `">`)
	for _, p := range params {
		b.WriteString("<" + p.name + ">")
		xml.EscapeText(&b, []byte(p.value)) //nolint:errcheck // bytes.Buffer never fails
		b.WriteString("</" + p.name + ">")
	}
	b.WriteString("</" + method + ">")
	b.WriteString(envelopeClose)
	return b.Bytes()
}

// readValue returns the text of the first element named name, in any namespace.
func readValue(body []byte, name string) (string, bool) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != name {
			continue
		}

		var text strings.Builder
		for {
			inner, err := dec.Token()
			if err != nil {
				return "", false
			}
			switch t := inner.(type) {
			case xml.CharData:
				text.Write(t)
			case xml.EndElement:
				return strings.TrimSpace(text.String()), true
			case xml.StartElement:
				if err := dec.Skip(); err != nil {
					return "", false
				}
			}
		}
	}
}
