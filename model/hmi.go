package model

// HMIStatus identifies what the drone's light/sound interface is conveying.
// The HMI never chooses a status itself; it is always told.
type HMIStatus int

const (
	HMIIdle HMIStatus = iota
	// HMIUncertain signals low landing confidence.
	HMIUncertain
	// HMIPromptConfirm asks the participant to approve the landing.
	HMIPromptConfirm
	// HMIPromptGuide asks the participant to designate a landing point.
	HMIPromptGuide
	HMILanding
	HMIAbort
	HMISuccess
	HMIReject
)

func (s HMIStatus) String() string {
	switch s {
	case HMIIdle:
		return "idle"
	case HMIUncertain:
		return "uncertain"
	case HMIPromptConfirm:
		return "prompt-confirm"
	case HMIPromptGuide:
		return "prompt-guide"
	case HMILanding:
		return "landing"
	case HMIAbort:
		return "abort"
	case HMISuccess:
		return "success"
	case HMIReject:
		return "reject"
	default:
		return "unknown"
	}
}
