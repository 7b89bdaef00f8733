package esewa

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
)

// SignedFieldNames is the exact, order-sensitive field list the gateway signs
// on initiation requests.
const SignedFieldNames = "total_amount,transaction_uuid,product_code"

// CanonicalMessage joins "name=value" pairs with commas for exactly the fields
// named in signedFieldNames, in that order. Both ends must agree on this
// string byte-for-byte or verification fails.
func CanonicalMessage(fields map[string]string, signedFieldNames string) string {
	names := strings.Split(signedFieldNames, ",")
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+fields[name])
	}
	return strings.Join(pairs, ",")
}

// Sign computes the base64 HMAC-SHA256 of message under secretKey.
func Sign(message, secretKey string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the signature over the decoded callback fields
// and compares it in constant time against the embedded one. The embedded
// status is never trusted before this check passes.
func VerifySignature(fields map[string]string, secretKey string) error {
	signedFieldNames := fields["signed_field_names"]
	received := fields["signature"]
	if signedFieldNames == "" || received == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "callback missing signature fields")
	}
	computed := Sign(CanonicalMessage(fields, signedFieldNames), secretKey)
	if !hmac.Equal([]byte(computed), []byte(received)) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "callback signature mismatch")
	}
	return nil
}

// DecodeCallbackData decodes the base64 JSON `data` parameter the gateway
// appends to its redirect. Stripped padding is tolerated; numeric values are
// kept verbatim so the canonical message can be reconstructed exactly.
func DecodeCallbackData(encoded string) (map[string]string, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback data is empty")
	}
	if pad := len(trimmed) % 4; pad != 0 {
		trimmed += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "callback data is not valid base64")
	}

	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.UseNumber()
	var obj map[string]any
	if err := decoder.Decode(&obj); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "callback data is not valid JSON")
	}

	fields := make(map[string]string, len(obj))
	for key, value := range obj {
		switch v := value.(type) {
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = v.String()
		case bool:
			if v {
				fields[key] = "true"
			} else {
				fields[key] = "false"
			}
		case nil:
			fields[key] = ""
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "callback data field not representable")
			}
			fields[key] = string(encoded)
		}
	}
	return fields, nil
}
