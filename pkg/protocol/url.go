package protocol

import (
	"fmt"
	"net/url"
	"strconv"
)

// ConnectURL adds the version, encoding and compression query parameters to
// a gateway base URL.
func ConnectURL(base string, compression Compression) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse gateway url: %q is not absolute", base)
	}
	q := u.Query()
	q.Set("v", strconv.Itoa(APIVersion))
	q.Set("encoding", "json")
	if compression == CompressionZlibStream {
		q.Set("compress", "zlib-stream")
	} else {
		q.Del("compress")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
