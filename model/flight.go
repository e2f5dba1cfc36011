package model

// FlightState identifies the drone's flight behaviour state.
type FlightState int

const (
	// FlightIdle is grounded with rotors off.
	FlightIdle FlightState = iota
	// FlightHover holds position at hover height, facing the participant.
	FlightHover
	// FlightCruise moves horizontally toward the cruise target at hover height.
	FlightCruise
	// FlightLanding descends toward the landing point.
	FlightLanding
	// FlightLandAbort climbs back to hover height after a cancelled landing.
	FlightLandAbort
	// FlightAbort is the terminal climb-out; the drone is removed at the top.
	FlightAbort
)

func (s FlightState) String() string {
	switch s {
	case FlightIdle:
		return "idle"
	case FlightHover:
		return "hover"
	case FlightCruise:
		return "cruise"
	case FlightLanding:
		return "landing"
	case FlightLandAbort:
		return "land-abort"
	case FlightAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// ParseFlightState maps a label back to its state. Unknown labels map to
// FlightIdle and report an error so callers can log and continue.
func ParseFlightState(s string) (FlightState, error) {
	for st := FlightIdle; st <= FlightAbort; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return FlightIdle, errUnknownLabel("flight state", s)
}
