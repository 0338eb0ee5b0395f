// Package rest is the gateway's boundary to the REST API.
//
// Only the one call the gateway needs is implemented: GatewayBot, which
// returns the connect URL, the recommended shard count and the session
// start limit used to size identify waves.
//
// # Usage
//
//	c := rest.NewClient(token, rest.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}))
//	info, err := c.GatewayBot(ctx)
//	if errors.Is(err, rest.ErrUnauthorized) {
//	    // bad token; retrying will not help
//	}
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package rest
