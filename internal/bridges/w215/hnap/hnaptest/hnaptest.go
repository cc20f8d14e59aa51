// Package hnaptest provides an in-process DSP-W215 for tests.
//
// The fake checks the login password and the HNAP_AUTH signature the way
// the plug does, serves configurable module readings and counts calls per
// method so tests can assert that no network traffic happened.
package hnaptest

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // HNAP1 mandates HMAC-MD5
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

const namespace = "http://purenetworks.com/HNAP1/"

// Default login challenge material.
const (
	DefaultChallenge = "CHALLENGE123"
	DefaultCookie    = "COOKIE456"
	DefaultPublicKey = "PUBLICKEY789"
)

// fields maps each module read to its reply element.
var fields = map[string]string{
	"GetSocketSettings":          "OPStatus",
	"GetCurrentPowerConsumption": "CurrentConsumption",
	"GetPMWarningThreshold":      "TotalConsumption",
	"GetCurrentTemperature":      "CurrentTemperature",
}

// Device is a fake plug served over HTTP.
type Device struct {
	server *httptest.Server
	t      testing.TB

	mu          sync.Mutex
	username    string
	pin         string
	values      map[string]string
	failures    map[string]int
	loginResult string
	privateKey  string
	calls       map[string]int
	holds       map[string]chan struct{}
}

// New starts a fake plug accepting username "admin" and pin. The server is
// closed when the test ends.
func New(t testing.TB, pin string) *Device {
	t.Helper()

	d := &Device{
		username: "admin",
		pin:      pin,
		values: map[string]string{
			"OPStatus":           "true",
			"CurrentConsumption": "42.6",
			"TotalConsumption":   "1.2345",
			"CurrentTemperature": "27.9",
		},
		failures: make(map[string]int),
		calls:    make(map[string]int),
		holds:    make(map[string]chan struct{}),
		t:        t,
	}
	d.server = httptest.NewServer(http.HandlerFunc(d.serve))
	t.Cleanup(d.server.Close)
	return d
}

// Endpoint returns the HNAP URL of the fake.
func (d *Device) Endpoint() string {
	return d.server.URL + "/HNAP1"
}

// Address returns the host:port the fake listens on.
func (d *Device) Address() string {
	u, _ := url.Parse(d.server.URL) //nolint:errcheck // httptest URLs always parse
	return u.Host
}

// Set sets the reply value of a reading element, e.g. "CurrentConsumption".
func (d *Device) Set(element, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[element] = value
}

// Omit removes a reading element from replies.
func (d *Device) Omit(element string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.values, element)
}

// Fail makes every call of method answer with the HTTP status.
// A status of 0 clears the failure.
func (d *Device) Fail(method string, status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status == 0 {
		delete(d.failures, method)
		return
	}
	d.failures[method] = status
}

// Hold stalls every call of method until the returned release is called.
// Held calls are released when the test ends.
func (d *Device) Hold(method string) (release func()) {
	ch := make(chan struct{})
	d.mu.Lock()
	d.holds[method] = ch
	d.mu.Unlock()

	var once sync.Once
	release = func() {
		once.Do(func() {
			d.mu.Lock()
			if d.holds[method] == ch {
				delete(d.holds, method)
			}
			d.mu.Unlock()
			close(ch)
		})
	}
	d.t.Cleanup(release)
	return release
}

// SetLoginResult forces the LoginResult of the second login step.
func (d *Device) SetLoginResult(result string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loginResult = result
}

// Calls returns how many requests for method were received.
func (d *Device) Calls(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[method]
}

// TotalCalls returns the number of requests received.
func (d *Device) TotalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		n += c
	}
	return n
}

func (d *Device) serve(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(strings.Trim(r.Header.Get("SOAPAction"), `"`), namespace)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	hold := d.holds[method]
	d.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls[method]++
	if status, ok := d.failures[method]; ok {
		http.Error(w, "injected failure", status)
		return
	}

	if method == "Login" {
		d.login(w, body)
		return
	}

	field, ok := fields[method]
	if !ok {
		http.Error(w, "unknown action "+method, http.StatusBadRequest)
		return
	}
	if !d.authorized(r, method) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	children := map[string]string{method + "Result": "OK"}
	if v, ok := d.values[field]; ok {
		children[field] = v
	}
	writeReply(w, method, children)
}

func (d *Device) login(w http.ResponseWriter, body []byte) {
	action, _ := element(body, "Action")
	username, _ := element(body, "Username")

	if action == "request" {
		writeReply(w, "Login", map[string]string{
			"LoginResult": "OK",
			"Challenge":   DefaultChallenge,
			"Cookie":      DefaultCookie,
			"PublicKey":   DefaultPublicKey,
		})
		return
	}

	privateKey := sign(DefaultPublicKey+d.pin, DefaultChallenge)
	password, _ := element(body, "LoginPassword")

	result := "failed"
	if username == d.username && password == sign(privateKey, DefaultChallenge) {
		result = "success"
		d.privateKey = privateKey
	}
	if d.loginResult != "" {
		result = d.loginResult
	}
	writeReply(w, "Login", map[string]string{"LoginResult": result})
}

// authorized checks the cookie and the HNAP_AUTH signature.
func (d *Device) authorized(r *http.Request, method string) bool {
	if d.privateKey == "" || r.Header.Get("Cookie") != "uid="+DefaultCookie {
		return false
	}
	sig, ts, ok := strings.Cut(r.Header.Get("HNAP_AUTH"), " ")
	if !ok {
		return false
	}
	return sig == sign(d.privateKey, ts+`"`+namespace+method+`"`)
}

func sign(key, msg string) string {
	mac := hmac.New(md5.New, []byte(key))
	mac.Write([]byte(msg))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// writeReply renders a SOAP reply.
func writeReply(w http.ResponseWriter, method string, children map[string]string) {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>`)
	fmt.Fprintf(&b, `<%sResponse xmlns="%s">`, method, namespace)
	for name, value := range children {
		writeElement(&b, name, value)
	}
	fmt.Fprintf(&b, `</%sResponse>`, method)
	b.WriteString(`</soap:Body></soap:Envelope>`)

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	_, _ = w.Write(b.Bytes())
}

func writeElement(b *bytes.Buffer, name, value string) {
	b.WriteString("<" + name + ">")
	_ = xml.EscapeText(b, []byte(value))
	b.WriteString("</" + name + ">")
}

// element returns the text of the first element named name.
func element(body []byte, name string) (string, bool) {
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
		var text string
		if err := dec.DecodeElement(&text, &start); err != nil {
			return "", false
		}
		return strings.TrimSpace(text), true
	}
}
