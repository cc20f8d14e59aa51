// Package hnap implements the client side of the HNAP1 session protocol
// spoken by D-Link DSP-W215 smart plugs.
//
// A session is opened with a two-step challenge login:
//
//  1. Login/request returns Challenge, Cookie and PublicKey.
//  2. PrivateKey = HMAC-MD5(PublicKey+pin, Challenge) and
//     LoginPassword = HMAC-MD5(PrivateKey, Challenge) are derived, and
//     Login/login is sent with LoginPassword.
//
// Every later request carries the uid cookie and an HNAP_AUTH header
// signed with PrivateKey over the timestamp and SOAPAction.
//
// Each Session method is one SOAP call returning the raw text of a single
// response element, or "undefined" when the element is missing. Values are
// not interpreted here.
//
// Calls to one host share a circuit breaker (github.com/sony/gobreaker):
// after repeated transport failures the plug is not contacted again until
// the breaker's open timeout elapses.
package hnap
