// Package govee is a client for the Govee cloud developer API.
//
// It covers the three calls the bridge needs: listing the account's
// devices, reading a device's capability state and sending a capability
// command. Every answered call is counted against the vendor's daily
// quota by a UsageCounter whose day boundary follows the configured
// timezone; an HTTP 429 answer sets a sticky rate-limited flag that the
// next successful call clears.
//
// The counter is persisted across restarts with a UsageRepository. The
// SQLite implementation keeps a single row in the api_usage table.
package govee
