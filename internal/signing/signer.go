// Package signing computes the HMAC signature header attached to outbound
// webhook requests, grounded on the HMAC-SHA256 pattern the wider retrieval
// pack uses for webhook signing (voicetyped-voicetyped's pkg/webhook
// signer), adapted to this protocol's "t=<ts>,v1=<hmac>" header shape.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Header is the HTTP header name carrying the signature.
const Header = "JB-Signature"

// Sign produces the "t=<unix_ts>,v1=<hmac_sha256_hex>" value for the given
// secret and request body. If secret is empty, Sign returns "" and the
// caller should omit the header entirely.
func Sign(secret string, body []byte) string {
	if secret == "" {
		return ""
	}
	ts := time.Now().Unix()
	return sign(secret, ts, body)
}

func sign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	sum := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", ts, sum)
}

// Verify checks a "t=...,v1=..." header value against the secret and body.
// maxAge bounds how old a signature's timestamp may be before it is
// rejected as stale; pass 0 to skip the age check.
func Verify(secret string, body []byte, header string, maxAge time.Duration) bool {
	if secret == "" || header == "" {
		return false
	}
	var ts int64
	var v1 string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, _ = strconv.ParseInt(kv[1], 10, 64)
		case "v1":
			v1 = kv[1]
		}
	}
	if v1 == "" {
		return false
	}
	if maxAge > 0 {
		age := time.Since(time.Unix(ts, 0))
		if age < 0 {
			age = -age
		}
		if age > maxAge {
			return false
		}
	}
	expected := sign(secret, ts, body)
	expectedV1 := expected[strings.Index(expected, "v1=")+len("v1="):]
	return hmac.Equal([]byte(expectedV1), []byte(v1))
}
