package dictation

import (
	"fmt"

	"murmur/log"
)

// Kind classifies a failure a session runs into.
type Kind int

const (
	KindUnsupported Kind = iota
	KindPermissionDenied
	KindCaptureFailure
	KindEngineStartFailure
	KindRecognitionError
	KindTeardownFailure
	KindDeliveryFailure
)

func (k Kind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindPermissionDenied:
		return "permission_denied"
	case KindCaptureFailure:
		return "capture_failure"
	case KindEngineStartFailure:
		return "engine_start_failed"
	case KindRecognitionError:
		return "recognition_error"
	case KindTeardownFailure:
		return "teardown_failure"
	case KindDeliveryFailure:
		return "delivery_failure"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// handleFailure applies the policy for one failure. Only KindUnsupported
// reaches the user; everything else is logged and absorbed.
func (s *Session) handleFailure(id string, kind Kind, err error) {
	switch kind {
	case KindUnsupported:
		log.Warn("speech engine unusable, dictation unavailable")
		if s.deps.Notice != nil {
			s.deps.Notice.NotifyUnavailable()
		}
	case KindPermissionDenied:
		// Simulated levels instead.
		log.Degrade(id, kind.String(), err)
	case KindCaptureFailure:
		// Simulated levels for the rest of the session.
		log.Degrade(id, kind.String(), err)
	case KindEngineStartFailure:
		// Rolled back to idle; the user can press start again.
		log.Degrade(id, kind.String(), err)
	case KindRecognitionError:
		// Never aborts the session. The tracker counts these.
		log.Degrade(id, kind.String(), err)
	case KindTeardownFailure, KindDeliveryFailure:
		log.Degrade(id, kind.String(), err)
	default:
		log.Errorf("session %s: unclassified failure %v: %v", id, kind, err)
	}
}
