package quakeflow

import (
	"github.com/ghalamif/QuakeFlow/internal/domain"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

// Sample is one tri-axial accelerometer reading in m/s².
type Sample = domain.Sample

// SeismicEvent is what the detector hands to the dispatcher when it triggers.
type SeismicEvent = domain.SeismicEvent

// SignedPayload is the JSON body delivered to the collector.
type SignedPayload = domain.SignedPayload

// LinkState is the dispatcher's uplink state.
type LinkState = domain.LinkState

// Sensor supplies raw samples (simulated, OPC UA, or a custom driver).
type Sensor = ports.Sensor

// EventQueue is the bounded hand-off between detection and dispatch.
type EventQueue = ports.EventQueue

// Transmitter delivers one signed payload per call.
type Transmitter = ports.Transmitter

// Receipt carries the collector's answer.
type Receipt = ports.Receipt

// Link reports and establishes network association.
type Link = ports.Link

// Clock combines the monotonic clock with a synchronized wall clock.
type Clock = ports.Clock

// KVStore persists the device identity.
type KVStore = ports.KVStore

// Spool holds signed payloads awaiting redelivery.
type Spool = ports.Spool

// Archive records every dispatch attempt.
type Archive = ports.Archive

// ArchiveRecord is one archived dispatch attempt.
type ArchiveRecord = ports.ArchiveRecord

// Observability emits structured logs and metrics.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// PayloadHandler receives each signed payload the dispatcher would send.
// Returning an error counts as a failed delivery.
type PayloadHandler func(SignedPayload) error
