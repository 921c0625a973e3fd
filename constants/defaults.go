package constants

import "time"

const Title = "Media ingest: receives files over TCP, sheds load when full and persists them with a worker pool"

const (
	DEFAULT_PORT             = 9000             // Receiver listening port
	DEFAULT_NUM_WORKERS      = 2                // Persistence worker goroutines
	DEFAULT_QUEUE_CAPACITY   = 10               // Uploads buffered before dropping
	DEFAULT_STORAGE_DIR      = "UploadedVideos" // Flat storage root
	DEFAULT_MAX_NAME_LENGTH  = 1024             // Upper bound on encoded file name bytes
	DEFAULT_MAX_PAYLOAD      = 1 << 31          // 2 GiB per upload
	TRANSCODE_THRESHOLD      = 10 * 1024 * 1024 // Payloads larger than this are transcoded
	DEFAULT_FILE_BUFFER_SIZE = 256 * 1024       // 256K buffered writes
	MAX_RESPONSE_SIZE        = 64 * 1024        // Sender reads at most this much of a reply
	DEFAULT_DSCP             = 0x0A             // QoS for high throughput
	PART_SUFFIX              = ".part"          // In-progress storage writes
)

const (
	TRANSCODE_TIMEOUT      = 30 * time.Second
	HANDLER_IDLE_TIMEOUT   = 60 * time.Second // Receiver drops a sender silent for this long
	SENDER_READ_TIMEOUT    = 120 * time.Second
	SENDER_DIAL_TIMEOUT    = 10 * time.Second
	MAX_ACCEPT_BACKOFF     = time.Second
	INITIAL_ACCEPT_BACKOFF = 5 * time.Millisecond
)
