package hnap

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // HNAP1 mandates HMAC-MD5
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// hmacMD5 returns the uppercase hex HMAC-MD5 of msg under key.
func hmacMD5(key, msg string) string {
	mac := hmac.New(md5.New, []byte(key))
	mac.Write([]byte(msg))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// deriveKeys computes the session private key and login password from the
// login challenge.
func deriveKeys(publicKey, pin, challenge string) (privateKey, loginPassword string) {
	privateKey = hmacMD5(publicKey+pin, challenge)
	loginPassword = hmacMD5(privateKey, challenge)
	return privateKey, loginPassword
}

// authHeader computes the HNAP_AUTH header for method at time now.
func authHeader(privateKey, method string, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	return hmacMD5(privateKey, ts+soapAction(method)) + " " + ts
}
