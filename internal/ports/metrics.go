package ports

// Metric names shared by the pipelines, the metrics adapter and the stats command.
const (
	SamplesTotal       = "quake_samples_total"
	DropoutsTotal      = "quake_samples_dropout_total"
	ReadFailuresTotal  = "quake_sensor_read_failures_total"
	OverrunsTotal      = "quake_detector_overruns_total"
	EventsTotal        = "quake_events_detected_total"
	QueueDroppedTotal  = "quake_queue_dropped_total"
	DispatchSentTotal  = "quake_dispatch_sent_total"
	DispatchFailTotal  = "quake_dispatch_failed_total"
	DispatchDropTotal  = "quake_dispatch_dropped_total"
	SpooledTotal       = "quake_spooled_total"
	ReplayedTotal      = "quake_replayed_total"
	QueueLength        = "quake_queue_length"
	StaLtaRatio        = "quake_sta_lta_ratio"
	LinkState          = "quake_link_state"
	SpoolSizeBytes     = "quake_spool_size_bytes"
	DispatchLatencySec = "quake_dispatch_latency_seconds"
)
