package fritz

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const envelopeFormat = `<?xml version="1.0" encoding="utf-8"?>` +
	`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" ` +
	`s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">` +
	`<s:Body><u:%[2]s xmlns:u="%[1]s"></u:%[2]s></s:Body>` +
	`</s:Envelope>`

func soapEnvelope(serviceType, action string) string {
	return fmt.Sprintf(envelopeFormat, serviceType, action)
}

// parseSOAPResponse extracts the output arguments of a SOAP response: the
// child elements of the <action>Response element, as name to text content.
func parseSOAPResponse(r io.Reader, action string) (Values, error) {
	dec := xml.NewDecoder(r)
	want := action + "Response"

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("response element %s not found", want)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}

		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == want {
			return parseArguments(dec)
		}
	}
}

// parseArguments reads the children of the current element until its end
// tag, collecting each child's character data.
func parseArguments(dec *xml.Decoder) (Values, error) {
	vals := Values{}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parsing response arguments: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			text, err := elementText(dec)
			if err != nil {
				return nil, err
			}
			vals[t.Name.Local] = text
		case xml.EndElement:
			return vals, nil
		}
	}
}

// elementText consumes the current element to its end tag and returns its
// top-level character data, trimmed.
func elementText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1

	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("parsing response arguments: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 1 {
				sb.Write(t)
			}
		}
	}

	return strings.TrimSpace(sb.String()), nil
}

// parseSOAPFault extracts the UPnP error of a SOAP fault body. It always
// returns a non-nil error; the fault detail is best-effort.
func parseSOAPFault(r io.Reader) error {
	dec := xml.NewDecoder(io.LimitReader(r, 64<<10))
	var code, desc string

	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "errorCode":
			_ = dec.DecodeElement(&code, &se)
		case "errorDescription":
			_ = dec.DecodeElement(&desc, &se)
		}
	}

	if code != "" {
		return fmt.Errorf("UPnP error %s: %s", code, desc)
	}
	return fmt.Errorf("SOAP fault")
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
