package recorder

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"cassette/pkg/config"
)

// Headers that never take part in a request key
var ignoredKeyHeaders = map[string]bool{
	"host":            true,
	"user-agent":      true,
	"accept-encoding": true,
}

// DeriveKey builds the request fingerprint used to match a request against
// recordings. It is a pure function of the request and the matching config.
//
// The key is METHOD:PATH, then "?query" when query matching is on and the
// request has parameters, then "|name:value|..." for the remaining headers
// when header matching is on, then "|body:<md5>" when body matching is on
// and a body is present. Unless matching is case sensitive the whole key is
// lower-cased.
func DeriveKey(req Request, m config.MatchingConfig) string {
	var sb strings.Builder

	sb.WriteString(req.Method())
	sb.WriteByte(':')
	sb.WriteString(req.Path())

	if m.IncludeQuery {
		if params := req.Query(); len(params) > 0 {
			sb.WriteByte('?')
			sb.WriteString(encodeQuery(params))
		}
	}

	if m.IncludeHeaders {
		if headers := keyHeaders(req.Headers()); headers != "" {
			sb.WriteByte('|')
			sb.WriteString(headers)
		}
	}

	if m.IncludeBody {
		if body := req.Body(); len(body) > 0 {
			sb.WriteString("|body:")
			sb.WriteString(BodyHash(body))
		}
	}

	key := sb.String()
	if !m.CaseSensitive {
		key = strings.ToLower(key)
	}
	return key
}

// BodyHash returns the hex MD5 digest of the canonical form of body
func BodyHash(body []byte) string {
	sum := md5.Sum(canonicalBody(body))
	return hex.EncodeToString(sum[:])
}

// canonicalBody re-encodes a JSON body so that formatting and object key
// order do not change the hash. Anything else is hashed as-is.
func canonicalBody(body []byte) []byte {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return body
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return body
	}
	return canonical
}

// encodeQuery serializes parameters in their given order
func encodeQuery(params []QueryParam) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, url.QueryEscape(p.Key)+"="+url.QueryEscape(p.Value))
	}
	return strings.Join(parts, "&")
}

func keyHeaders(headers []Header) string {
	kept := make([]Header, 0, len(headers))
	for _, h := range headers {
		if ignoredKeyHeaders[strings.ToLower(h.Name)] {
			continue
		}
		kept = append(kept, h)
	}
	if len(kept) == 0 {
		return ""
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := strings.ToLower(kept[i].Name), strings.ToLower(kept[j].Name)
		if a != b {
			return a < b
		}
		return kept[i].Value < kept[j].Value
	})

	parts := make([]string, 0, len(kept))
	for _, h := range kept {
		parts = append(parts, h.Name+":"+h.Value)
	}
	return strings.Join(parts, "|")
}
