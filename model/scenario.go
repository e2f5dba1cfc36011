package model

// Scenario identifies one experimental condition. The three conditions
// differ in how much the participant is involved in the landing decision:
// ScenarioAbort (C-0) none, ScenarioConfirm (C-1) a yes/no, and
// ScenarioGuidance (C-2) a participant-chosen landing point.
type Scenario int

const (
	ScenarioAbort Scenario = iota
	ScenarioConfirm
	ScenarioGuidance
)

func (s Scenario) String() string {
	switch s {
	case ScenarioAbort:
		return "c0-abort"
	case ScenarioConfirm:
		return "c1-confirm"
	case ScenarioGuidance:
		return "c2-guidance"
	default:
		return "unknown"
	}
}

// ParseScenario accepts both the canonical labels and the bare condition
// codes ("c0", "c1", "c2"). Unknown labels map to ScenarioAbort with an
// error so callers can log and fall back.
func ParseScenario(s string) (Scenario, error) {
	switch s {
	case "c0", "c0-abort":
		return ScenarioAbort, nil
	case "c1", "c1-confirm":
		return ScenarioConfirm, nil
	case "c2", "c2-guidance":
		return ScenarioGuidance, nil
	}
	return ScenarioAbort, errUnknownLabel("scenario", s)
}

// Interaction identifies a participant-facing task started by a scenario.
type Interaction int

const (
	InteractionConfirm Interaction = iota
	InteractionGuidance
)

func (k Interaction) String() string {
	switch k {
	case InteractionConfirm:
		return "confirm"
	case InteractionGuidance:
		return "guidance"
	default:
		return "unknown"
	}
}

// ScenarioMode selects how a session picks its scenario order.
type ScenarioMode string

const (
	// ModeSingle runs one configured scenario, mainly for piloting a setup.
	ModeSingle ScenarioMode = "single"
	// ModeFixed runs the configured order verbatim.
	ModeFixed ScenarioMode = "fixed"
	// ModeLatin runs the balanced Latin-square order for the participant index.
	ModeLatin ScenarioMode = "latin"
)

// ParseMode falls back to ModeLatin for unknown input, reporting an error
// so callers can log the substitution.
func ParseMode(s string) (ScenarioMode, error) {
	switch ScenarioMode(s) {
	case ModeSingle, ModeFixed, ModeLatin:
		return ScenarioMode(s), nil
	}
	return ModeLatin, errUnknownLabel("scenario mode", s)
}
