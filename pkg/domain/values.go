package domain

// ---------------------------------------------------------------------------
// Shared value objects — used across bounded contexts
// ---------------------------------------------------------------------------

// MessageKind classifies a direct-message item. The set is closed: anything
// the private API reports outside of it maps to KindPlaceholder.
type MessageKind string

const (
	KindText          MessageKind = "text"
	KindMedia         MessageKind = "media"
	KindVoice         MessageKind = "voice_media"
	KindLike          MessageKind = "like"
	KindLink          MessageKind = "link"
	KindAnimatedMedia MessageKind = "animated_media"
	KindRavenMedia    MessageKind = "raven_media"
	KindReaction      MessageKind = "reaction"
	KindActionLog     MessageKind = "action_log"
	KindPlaceholder   MessageKind = "placeholder"
)

// AllMessageKinds returns every recognized message kind.
func AllMessageKinds() []MessageKind {
	return []MessageKind{
		KindText, KindMedia, KindVoice, KindLike, KindLink,
		KindAnimatedMedia, KindRavenMedia, KindReaction,
		KindActionLog, KindPlaceholder,
	}
}

// String implements fmt.Stringer.
func (mk MessageKind) String() string { return string(mk) }

// Valid returns true if the kind is recognized.
func (mk MessageKind) Valid() bool {
	for _, k := range AllMessageKinds() {
		if k == mk {
			return true
		}
	}
	return false
}

// NormalizeKind maps an arbitrary item-type string to a recognized kind.
func NormalizeKind(raw string) MessageKind {
	k := MessageKind(raw)
	if k.Valid() {
		return k
	}
	return KindPlaceholder
}

// ---------------------------------------------------------------------------

// StopReason explains why a message collector ended. The well-known reasons
// are enumerated below; callers may pass any other string to Stop.
type StopReason string

const (
	StopTime    StopReason = "time"
	StopIdle    StopReason = "idle"
	StopLimit   StopReason = "limit"
	StopManual  StopReason = "manual"
	StopCleanup StopReason = "cleanup"
)

func (sr StopReason) String() string { return string(sr) }

// ---------------------------------------------------------------------------

// ConnectionStatus represents the health state of the realtime link.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusError        ConnectionStatus = "error"
)

func (cs ConnectionStatus) String() string { return string(cs) }

// ---------------------------------------------------------------------------

// TypingMode selects which composer indicator to raise on a thread.
type TypingMode string

const (
	TypingText  TypingMode = "text"
	TypingVoice TypingMode = "voice"
)

func (tm TypingMode) String() string { return string(tm) }

// ---------------------------------------------------------------------------

// Metadata is a generic key-value map for extensible properties.
type Metadata map[string]string

// Get returns a metadata value, or empty string if not present.
func (m Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return m[key]
}

// Set writes a metadata key-value pair. Initializes the map if nil.
func (m *Metadata) Set(key, value string) {
	if *m == nil {
		*m = make(Metadata)
	}
	(*m)[key] = value
}
