package connectors

import "fmt"

// RateLimitReturnCode is the return_code Kiwoom sends when the per-app
// request allowance is exhausted.
const RateLimitReturnCode = 1700

// KiwoomErrorCodes maps Kiwoom return_code values to readable messages.
var KiwoomErrorCodes = map[int]string{
	0:    "OK",
	1501: "API_ID_MISSING",               // api-id header absent or empty
	1504: "URI_NOT_SUPPORTED",            // endpoint does not serve this api-id
	1505: "API_ID_NOT_FOUND",             // unknown api-id
	1511: "REQUIRED_FIELD_MISSING",       // mandatory body field empty
	1512: "HTTP_HEADER_INVALID",          // authorization header malformed
	1513: "HTTP_HEADER_AUTH_MISSING",     // authorization header absent
	1514: "HTTP_HEADER_CONT_YN_INVALID",  // cont-yn must be Y or N
	1515: "HTTP_HEADER_NEXT_KEY_INVALID", // next-key malformed
	1516: "INVALID_REQUEST_FIELD",        // body field failed validation
	1517: "INVALID_INPUT",                // generic input error
	1687: "RECURSIVE_CALL_LIMITED",       // same request fired too fast
	1700: "REQUEST_LIMIT_EXCEEDED",       // allowed request count exceeded
	1901: "MARKET_CODE_NOT_FOUND",        // unknown market code
	1902: "STOCK_NOT_FOUND",              // unknown stock code
	1999: "INTERNAL_ERROR",               // broker side failure
	8001: "APP_KEY_INVALID",              // app key not registered
	8002: "APP_KEY_SECRET_MISMATCH",      // secret does not match app key
	8003: "ACCESS_TOKEN_NOT_FOUND",       // token unknown to broker
	8005: "ACCESS_TOKEN_EXPIRED",         // token expired
	8006: "ACCESS_TOKEN_ISSUE_FAILED",    // broker could not issue a token
	8009: "TOKEN_ISSUE_FAILED_IP",        // caller ip not allowed
	8010: "TOKEN_IP_MISMATCH",            // token used from another ip
	8011: "GRANT_TYPE_INVALID",           // grant_type not client_credentials
	8012: "GRANT_TYPE_MISSING",           // grant_type absent
	8015: "TOKEN_REVOKE_FAILED",          // revoke rejected
	8016: "TOKEN_REVOKE_MISSING_TOKEN",   // revoke without token
	8020: "APP_KEY_SECRET_MISSING",       // appkey/secretkey absent
	8030: "INVESTOR_TYPE_MISMATCH",       // mock key used against live host
	8031: "INVESTOR_TYPE_MISMATCH_MOCK",  // live key used against mock host
	8040: "TERMINAL_AUTH_FAILED",         // device registration missing
	8050: "ACCOUNT_NOT_REGISTERED",       // account not linked to the app
	8103: "TOKEN_ISSUE_FAILED_TERMINAL",  // token denied for terminal
}

// GetErrorMsg returns a readable message for a Kiwoom return_code.
func GetErrorMsg(code int) string {
	if msg, ok := KiwoomErrorCodes[code]; ok {
		return msg
	}
	return fmt.Sprintf("UNKNOWN_KIWOOM_ERROR_%d", code)
}

// IsTokenError reports codes that mean the access token must be reissued.
func IsTokenError(code int) bool {
	switch code {
	case 8003, 8005, 8010:
		return true
	}
	return false
}
