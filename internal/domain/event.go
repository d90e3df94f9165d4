package domain

import (
	"strconv"
	"time"
)

// SeismicEvent is emitted by the detector when the STA/LTA trigger fires.
// DetectedAt is a monotonic offset since boot, not wall-clock time.
type SeismicEvent struct {
	MagnitudeRatio float64       `json:"magnitude_ratio"`
	DetectedAt     time.Duration `json:"detected_at"`
}

// FixedPointValue encodes the ratio scaled by 100 and truncated toward zero.
func (e SeismicEvent) FixedPointValue() int {
	return int(e.MagnitudeRatio * 100)
}

// SignedPayload is the JSON body delivered to the collector.
type SignedPayload struct {
	Value           int    `json:"value"`
	MisuratorID     int    `json:"misurator_id"`
	DeviceTimestamp int64  `json:"device_timestamp"`
	SignatureHex    string `json:"signature_hex"`
}

// Message is the exact string covered by the signature: "{value}:{device_timestamp}".
func (p SignedPayload) Message() string {
	return SigningMessage(p.Value, p.DeviceTimestamp)
}

// SigningMessage formats the canonical signed message.
func SigningMessage(value int, unixSeconds int64) string {
	return strconv.Itoa(value) + ":" + strconv.FormatInt(unixSeconds, 10)
}
