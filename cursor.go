package osprey

import (
	"encoding/base64"
	"strconv"
	"time"
)

// Pagination cursors are base64 of the decimal ASCII of a millisecond
// Unix timestamp. Opaque to callers, but the encoding is stable and
// documented for tooling.

func encodePageCursor(ms int64) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(ms, 10)))
}

func decodePageCursor(token string) (time.Time, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, &InvalidCursorError{Token: token, Cause: err}
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, &InvalidCursorError{Token: token, Cause: err}
	}
	return time.UnixMilli(ms).UTC(), nil
}
