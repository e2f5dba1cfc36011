package core

import "github.com/carrywater/dronesim-ar-sub000/model"

// latinSquare balances condition order across participants. Row r is the
// order participant p runs when p mod 3 == r.
var latinSquare = [3][3]model.Scenario{
	{model.ScenarioAbort, model.ScenarioConfirm, model.ScenarioGuidance},
	{model.ScenarioConfirm, model.ScenarioGuidance, model.ScenarioAbort},
	{model.ScenarioGuidance, model.ScenarioAbort, model.ScenarioConfirm},
}

// Sequencer maps (participant, step) to a scenario through the Latin
// square. It is a pure lookup: no state, no errors, steps wrap.
type Sequencer struct {
	Participant int
}

// At returns the scenario for the given step of this participant's session.
// Negative participants and steps are normalized by Euclidean modulo.
func (s Sequencer) At(step int) model.Scenario {
	return latinSquare[euclidMod(s.Participant, 3)][euclidMod(step, 3)]
}

// Order returns this participant's full condition order.
func (s Sequencer) Order() [3]model.Scenario {
	return latinSquare[euclidMod(s.Participant, 3)]
}

func euclidMod(v, m int) int {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}
