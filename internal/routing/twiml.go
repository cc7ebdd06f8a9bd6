package routing

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// TwiML output lets PBXes that speak Twilio markup fetch the decision
// directly. Only the verbs a routing answer needs are modelled.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlDial struct {
	XMLName xml.Name  `xml:"Dial"`
	Timeout int       `xml:"timeout,attr,omitempty"`
	Number  string    `xml:"Number,omitempty"`
	Sip     *twimlSip `xml:"Sip,omitempty"`
}

type twimlSip struct {
	URI string `xml:",chardata"`
}

// DialTimeoutSeconds is how long a connect decision rings the extension
// before the PBX falls through to its own plan.
const DialTimeoutSeconds = 20

// RenderTwiML encodes d as a TwiML document. A connect decision dials the
// target (SIP URIs as <Sip>, anything else as <Number>); a default decision
// is an empty <Response/> so the PBX continues with its own plan.
func RenderTwiML(d Decision) (string, error) {
	var r twimlResponse

	switch d.Action {
	case ActionDefault:
	case ActionConnect:
		target := strings.TrimSpace(d.ConnectTo)
		if target == "" {
			return "", errors.New("routing: connect decision without a target")
		}
		dial := twimlDial{Timeout: DialTimeoutSeconds}
		if strings.HasPrefix(strings.ToLower(target), "sip:") {
			dial.Sip = &twimlSip{URI: target}
		} else {
			dial.Number = target
		}
		r.Verbs = append(r.Verbs, dial)
	default:
		return "", errors.New("routing: unknown action " + string(d.Action))
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
